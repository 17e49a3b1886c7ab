package webhook

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/hail"
	"github.com/xraph/hail/claim"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
)

// Handler processes one inbound envelope and produces the reply.
// Middleware wraps this; the Processor is the terminal link.
type Handler interface {
	Handle(ctx context.Context, env *Envelope) (*Reply, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env *Envelope) (*Reply, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, env *Envelope) (*Reply, error) {
	return f(ctx, env)
}

// DriverDirectory resolves senders to driver records.
type DriverDirectory interface {
	FindDriverByPhone(ctx context.Context, phone string) (*driver.Driver, error)
}

// Claimer resolves claim attempts. claim.Arbitrator satisfies it.
type Claimer interface {
	Claim(ctx context.Context, token string, d *driver.Driver) (*claim.Result, error)
}

// RideActions are the driver-initiated lifecycle operations. The engine
// satisfies it.
type RideActions interface {
	// AdvanceActive moves the driver's active ride one step forward.
	// Returns hail.ErrRideNotFound when the driver holds no ride.
	AdvanceActive(ctx context.Context, d *driver.Driver) (*ride.Ride, error)

	// CancelActive cancels the driver's active ride.
	CancelActive(ctx context.Context, d *driver.Driver) (*ride.Ride, error)
}

// Processor is the terminal webhook handler: it resolves the sender,
// parses the command, and runs it. Every path produces a Reply; a
// non-nil error still comes with a safe fallback Reply so the transport
// can answer 200 regardless.
type Processor struct {
	drivers DriverDirectory
	claimer Claimer
	actions RideActions
	logger  *slog.Logger
}

var _ Handler = (*Processor)(nil)

// NewProcessor creates the terminal webhook handler.
func NewProcessor(drivers DriverDirectory, claimer Claimer, actions RideActions, logger *slog.Logger) *Processor {
	return &Processor{
		drivers: drivers,
		claimer: claimer,
		actions: actions,
		logger:  logger,
	}
}

// Handle implements Handler.
func (p *Processor) Handle(ctx context.Context, env *Envelope) (*Reply, error) {
	d, err := p.drivers.FindDriverByPhone(ctx, env.Sender)
	if err != nil {
		if errors.Is(err, hail.ErrDriverNotFound) {
			return replyUnknownSender(), nil
		}
		return replyTryAgain(), err
	}

	cmd, token := ParseCommand(env.Body)
	switch cmd {
	case CommandClaim:
		return p.handleClaim(ctx, token, d)
	case CommandAdvance:
		return p.handleAdvance(ctx, d)
	case CommandCancel:
		return p.handleCancel(ctx, d)
	default:
		return replyUsage(), nil
	}
}

func (p *Processor) handleClaim(ctx context.Context, token string, d *driver.Driver) (*Reply, error) {
	res, err := p.claimer.Claim(ctx, token, d)
	if err != nil {
		return replyTryAgain(), err
	}
	return claimReply(res), nil
}

func (p *Processor) handleAdvance(ctx context.Context, d *driver.Driver) (*Reply, error) {
	rd, err := p.actions.AdvanceActive(ctx, d)
	switch {
	case err == nil:
		return advanceReply(rd), nil
	case errors.Is(err, hail.ErrRideNotFound):
		return replyNoActiveRide(), nil
	case errors.Is(err, hail.ErrInvalidTransition):
		return replyText("Your ride cannot be advanced right now."), nil
	default:
		return replyTryAgain(), err
	}
}

func (p *Processor) handleCancel(ctx context.Context, d *driver.Driver) (*Reply, error) {
	rd, err := p.actions.CancelActive(ctx, d)
	switch {
	case err == nil:
		return cancelReply(rd), nil
	case errors.Is(err, hail.ErrRideNotFound):
		return replyNoActiveRide(), nil
	case errors.Is(err, hail.ErrInvalidTransition):
		return replyText("Your ride cannot be cancelled at this point."), nil
	default:
		return replyTryAgain(), err
	}
}
