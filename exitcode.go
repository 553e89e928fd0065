package main

// Exit codes per spec.md §6: 0 success or already-in-desired-state,
// 1 error, 130 keyboard interrupt — grounded on
// roach88-nysm/brutalist/internal/cli's own ExitError/exit-code
// convention, narrowed to the three codes this daemon's front end
// needs instead of that CLI's larger command-specific set.
const (
	exitSuccess           = 0
	exitFailure           = 1
	exitKeyboardInterrupt = 130
)
