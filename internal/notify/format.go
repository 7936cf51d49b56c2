package notify

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/arenaledger/internal/domain"
)

const displayPlaces = 4

// Format renders a ledger event as a chat title and body. Bets are not
// announced; ok is false for them.
func Format(evt domain.Event) (title, message string, ok bool) {
	switch evt.Type {
	case domain.EventMarketCreated:
		c := evt.Created
		if c == nil {
			return "", "", false
		}
		var b strings.Builder
		fmt.Fprintf(&b, "#%d %s\n", c.MarketID, c.Question)
		fmt.Fprintf(&b, "Outcomes: %s\n", strings.Join(c.Outcomes, " / "))
		fmt.Fprintf(&b, "Category: %s, %s resolution\n", c.Category, c.ResolutionMode)
		fmt.Fprintf(&b, "Closes: %s", c.EndTime.UTC().Format("2006-01-02 15:04 MST"))
		if c.IsPrivate {
			b.WriteString("\nPrivate market")
		}
		return "New market", b.String(), true

	case domain.EventMarketResolved:
		r := evt.Resolved
		if r == nil {
			return "", "", false
		}
		msg := fmt.Sprintf("#%d resolved to %q\nPool: %s, winning side: %s\nTo winners: %s",
			r.MarketID, r.WinningLabel,
			r.TotalPool.Format(displayPlaces),
			r.WinningPool.Format(displayPlaces),
			r.Distributable.Format(displayPlaces),
		)
		if r.WinningPool.IsZero() {
			msg += "\nNobody backed the winner; the market is unclaimable."
		}
		return "Market resolved", msg, true

	case domain.EventWinningsClaimed:
		c := evt.Claimed
		if c == nil {
			return "", "", false
		}
		return "Winnings claimed", fmt.Sprintf("#%d %s claimed %s",
			c.MarketID, c.Bettor.Hex(), c.Payout.Format(displayPlaces)), true
	}
	return "", "", false
}
