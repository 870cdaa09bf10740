package quotes

// Quote workflow statuses. The production pipeline is linear with a
// branch at pre-print for electronic vs manual cutting.
const (
	StatusDraft                 = "draft"
	StatusSent                  = "sent"
	StatusNegotiating           = "negotiating"
	StatusConfirmed             = "confirmed"
	StatusProduction            = "production"
	StatusPrePrint              = "pre_print"
	StatusPrintingCutElectronic = "printing_cut_electronic"
	StatusPrintingCutManual     = "printing_cut_manual"
	StatusPrintingLamination    = "printing_lamination"
	StatusPrintingFinishing     = "printing_finishing"
	StatusFinished              = "finished"
	StatusDelivered             = "delivered"
	StatusRejected              = "rejected"
)

// transitions is the closed set of allowed status moves. Rejection is
// only possible before confirmation; delivered and rejected are
// terminal.
var transitions = map[string][]string{
	StatusDraft:                 {StatusSent, StatusNegotiating, StatusConfirmed, StatusRejected},
	StatusSent:                  {StatusNegotiating, StatusConfirmed, StatusRejected},
	StatusNegotiating:           {StatusSent, StatusConfirmed, StatusRejected},
	StatusConfirmed:             {StatusProduction},
	StatusProduction:            {StatusPrePrint},
	StatusPrePrint:              {StatusPrintingCutElectronic, StatusPrintingCutManual},
	StatusPrintingCutElectronic: {StatusPrintingLamination},
	StatusPrintingCutManual:     {StatusPrintingLamination},
	StatusPrintingLamination:    {StatusPrintingFinishing},
	StatusPrintingFinishing:     {StatusFinished},
	StatusFinished:              {StatusDelivered},
	StatusDelivered:             {},
	StatusRejected:              {},
}

// IsValidStatus reports whether s belongs to the closed status enum.
func IsValidStatus(s string) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a quote may move from one status to
// another. Unknown statuses never transition.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TriggersDeduction reports whether entering the status fires the
// stock deduction. It can fire at confirmation or at production start,
// whichever happens first; the quote's stock-deducted flag keeps it
// from running twice.
func TriggersDeduction(to string) bool {
	return to == StatusConfirmed || to == StatusProduction
}

// IsTerminal reports whether no further transitions exist.
func IsTerminal(s string) bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}
