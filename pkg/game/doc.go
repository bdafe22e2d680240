// Package game is the authoritative session state machine and the driver that
// runs it.
//
// A session moves through three phases, in order and exactly once:
//
//	Accepting -> Countdown -> Running
//
// Every phase offers two operations. Advance moves simulated time forward and
// may return the next phase. Exchange drains the inbound bridge queues of the
// connected clients and queues outbound messages. The Driver calls Advance on
// every iteration and Exchange at a slower fixed rate, so phase logic holds for
// any number of Advance calls between two exchanges.
//
// # Ownership
//
// Phases are owned by the driver goroutine and are not safe for concurrent use.
// The only state shared with connection goroutines is the Network (registry
// snapshot plus bridge queues) and the admission Control.
//
// # Usage
//
//	h := hub.New(registry.New(64))
//	d := game.NewDriver(h, game.DefaultConfig(),
//	    game.WithLogger(logger),
//	    game.WithSink(console.New(os.Stdout)),
//	)
//	go d.Run(ctx)
//
//	if d.Gate().Admitting() {
//	    conn, err := h.Connect()
//	    // ...
//	}
package game
