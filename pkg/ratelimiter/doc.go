// Package ratelimiter implements token bucket rate limiting with in-memory
// and Redis stores and an HTTP middleware.
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       20,
//		RefillRate:     5,
//		RefillInterval: time.Minute,
//	})
//	if err != nil {
//		return err
//	}
//
//	r.With(ratelimiter.Middleware(bucket, ratelimiter.ByClientIP)).Post("/checkout", h)
//
// A denied request does not consume tokens. The middleware lets requests
// through when the store fails unless WithOnError says otherwise.
package ratelimiter
