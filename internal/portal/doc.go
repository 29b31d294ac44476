// Package portal is the HTTP server behind the setup captive portal.
//
// Routes are plain functions taking a Request. Unlike net/http handlers they
// never run concurrently: net/http goroutines queue each request and block,
// and the owner runs exactly one handler per HandleClient call. Handlers can
// therefore read and mutate the owner's state without locks.
//
// # Usage Example
//
//	srv := portal.New(portal.Config{Port: 80})
//	srv.On("/info", func(r portal.Request) {
//	    r.Send(http.StatusOK, "text/plain", "v1.0.0")
//	})
//	if err := srv.Start(); err != nil {
//	    return err
//	}
//	for {
//	    srv.HandleClient()
//	    time.Sleep(20 * time.Millisecond)
//	}
//
// A handler may leave a request unanswered; the client connection is then
// closed with no response at all.
package portal
