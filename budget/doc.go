// Package budget tracks how full the conversational context window is.
//
// The Tracker estimates tokens with a fixed character heuristic, classifies
// usage into ordered levels (green through critical), keeps a bounded FIFO
// history of measurements and forecasts when the window will be exhausted.
// Orange, red and critical levels carry a non-fatal warning; critical also
// raises a handoff signal that the session controller acts on.
package budget
