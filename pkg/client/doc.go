// Package client implements a live chat session: room resolution, the
// websocket transport, authentication, heartbeats and the event loop that
// feeds notifications to a dispatch table.
//
// # Lifecycle
//
//	Idle → ResolvingRoom → Connecting → Authenticating → Live → Closing → Closed
//
// Start drives a client from Idle to Authenticating; the auth reply moves
// it to Live. Stop, a transport failure or a rejected auth end the
// session. OnSessionStop fires exactly once per client, whether or not
// the session ever went live.
//
// # Event Loop
//
// One goroutine reads the websocket; another, the event loop, decodes
// frames, answers heartbeat ticks and runs every callback. Callbacks must
// not block for long: heartbeats are not sent while one runs.
//
// A callback that wants to end the session calls Stop on the client it
// was given (for dispatch callbacks, s.(*client.Client)). That Stop
// returns at once; Stop on the client returned by New always waits for
// the loop, so calling it from inside a callback deadlocks.
//
// # Usage
//
//	c := client.New(roomID,
//	    client.WithResolver(resolve.NewWeb()),
//	    client.WithHandler(client.Handler{
//	        Web: dispatch.WebTable(dispatch.WebCallbacks{
//	            Danmaku: func(s dispatch.Session, d events.Danmaku) {
//	                fmt.Println(d.Uname, d.Msg)
//	            },
//	        }),
//	    }),
//	)
//	if err := c.Start(ctx); err != nil {
//	    return err
//	}
//	defer c.Stop()
//	return c.Wait(ctx)
//
// Reconnection is not done here; see package supervisor.
package client
