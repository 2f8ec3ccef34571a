// Package async provides utilities for asynchronous programming with Go generics.
//
// This package implements a Future pattern for non-blocking operations with timeout
// support and coordination utilities for managing multiple asynchronous computations.
//
// # Core Types
//
// Future[U] represents the result of an asynchronous computation. It provides methods
// to wait for completion (Await), check status without blocking (IsComplete), and
// handle timeouts (AwaitWithTimeout). A future resolves exactly once; every waiter
// observes the same result.
//
// # Usage
//
// Basic asynchronous operation:
//
//	future := async.Go(func() (User, error) {
//		return fetchUser(ctx, 123)
//	})
//
//	// Do other work...
//
//	user, err := future.Await()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Using timeout:
//
//	user, err := future.AwaitWithTimeout(50 * time.Millisecond)
//	if errors.Is(err, async.ErrTimeout) {
//		log.Println("Operation timed out")
//	}
//
// Manually-resolved futures bridge callback-style APIs:
//
//	f := async.NewFuture[Response]()
//	transport.OnReply(func(r Response, err error) { f.Complete(r, err) })
//	return f
//
// # Coordination Utilities
//
// WaitAll waits for all futures to complete and returns their results in order.
// WaitAny returns as soon as any future completes, with its index and result.
//
// # Concurrency Safety
//
// All operations are safe for concurrent use. The Future type uses sync.Once
// internally so completion is atomic and races between resolution sources are
// benign: the first Complete wins, later calls are ignored.
package async
