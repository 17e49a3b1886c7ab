package webhook

import (
	"errors"
	"fmt"

	"github.com/xraph/hail/claim"
	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ride"
)

// Reply texts are deliberately short: they travel over SMS-class
// channels with tight length limits.

func replyText(text string) *Reply { return &Reply{Text: text} }

func replyUsage() *Reply {
	return replyText("Reply with the ride code to claim a ride, 1 to advance your active ride, 0 to cancel it.")
}

func replyUnknownSender() *Reply {
	return replyText("This number is not registered. Contact dispatch to sign up.")
}

func replyTryAgain() *Reply {
	return replyText("Something went wrong on our side. Please try again.")
}

// claimReply maps an arbitration result to the text the driver sees.
// Winners and replayed winners get the same confirmation, so a retried
// delivery reads identically to the first.
func claimReply(res *claim.Result) *Reply {
	switch res.Outcome {
	case claim.OutcomeWon:
		return replyText(fmt.Sprintf("Ride #%d is yours. Pickup: %s. Dropoff: %s. Reply 1 when done, 0 to cancel.",
			res.Ride.Number, res.Ride.Pickup, res.Ride.Dropoff))

	case claim.OutcomeAlreadyClaimed:
		return replyText(fmt.Sprintf("Too late. Ride #%d was already taken.", res.Ride.Number))

	case claim.OutcomeNotFound, claim.OutcomeInvalidToken:
		return replyText("That ride is no longer available.")

	case claim.OutcomeIneligible:
		return eligibilityReply(res.Reason)

	default:
		return replyTryAgain()
	}
}

func eligibilityReply(reason error) *Reply {
	switch {
	case errors.Is(reason, driver.ErrBlocked):
		return replyText("Your account is blocked. Contact dispatch.")
	case errors.Is(reason, driver.ErrInactive):
		return replyText("Your account is inactive. Contact dispatch.")
	case errors.Is(reason, driver.ErrNotApproved):
		return replyText("Your registration is still pending approval.")
	default:
		return replyText("You cannot claim rides right now. Contact dispatch.")
	}
}

func advanceReply(rd *ride.Ride) *Reply {
	switch rd.Status {
	case ride.StatusFinished:
		return replyText(fmt.Sprintf("Ride #%d finished. Commission is due.", rd.Number))
	case ride.StatusCommissionPaid:
		return replyText(fmt.Sprintf("Ride #%d settled. Thank you.", rd.Number))
	default:
		return replyText(fmt.Sprintf("Ride #%d is now %s.", rd.Number, rd.Status))
	}
}

func cancelReply(rd *ride.Ride) *Reply {
	return replyText(fmt.Sprintf("Ride #%d cancelled.", rd.Number))
}

func replyNoActiveRide() *Reply {
	return replyText("You have no active ride.")
}
