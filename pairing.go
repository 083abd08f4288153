package bthost

import "context"

// Authenticator is the external SMP/classic-authentication collaborator
// (§4.5, §6): the core waits on the events it raises and resolves the
// caller's promise, but owns none of the cryptographic exchange itself.
type Authenticator interface {
	// Pair runs the pairing procedure (SMP over LE, or the classic
	// Secure Simple Pairing exchange) for the given connection.
	Pair(ctx context.Context, conn *Connection) error

	// Encrypt starts or resumes link encryption using previously bonded
	// keys, without running a fresh pairing procedure.
	Encrypt(ctx context.Context, conn *Connection) error

	// Authenticate raises the connection's authentication requirement,
	// pairing first if no suitable bond already exists.
	Authenticate(ctx context.Context, conn *Connection) error
}

// Pair delegates to the configured Authenticator, aborting early with a
// Disconnected error if the connection is lost while pairing is in
// flight (§5 "abort-on-disconnection"). Pair does not check for a
// pairing already in flight on the connection: each call is passed to
// the Authenticator.
func (d *Device) Pair(ctx context.Context, conn *Connection) error {
	return d.runAuthOp(ctx, conn, d.Authenticator.Pair)
}

// Encrypt delegates to the configured Authenticator to (re)start link
// encryption from existing bonded keys.
func (d *Device) Encrypt(ctx context.Context, conn *Connection) error {
	return d.runAuthOp(ctx, conn, d.Authenticator.Encrypt)
}

// Authenticate delegates to the configured Authenticator to satisfy the
// connection's authentication requirement, pairing if necessary.
func (d *Device) Authenticate(ctx context.Context, conn *Connection) error {
	return d.runAuthOp(ctx, conn, d.Authenticator.Authenticate)
}

func (d *Device) runAuthOp(ctx context.Context, conn *Connection, op func(context.Context, *Connection) error) error {
	if d.Authenticator == nil {
		return &InvalidState{Msg: "no authenticator configured"}
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	disconnected := make(chan struct{})
	conn.OnDisconnect(func(uint8) {
		cancel()
		close(disconnected)
	})

	done := make(chan struct{})
	var err error
	go func() {
		err = op(opCtx, conn)
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-disconnected:
		return &Disconnected{Handle: conn.Handle}
	case <-ctx.Done():
		return ctx.Err()
	}
}
