// Package schedule holds the fixed rule tables and the per-second tick evaluator.
//
// Two rule families exist:
//   - differential rules fire when more than Interval has elapsed since they last fired
//   - discrete rules fire once inside each wall-clock minute matching HH:MM ("*" = any)
//
// Every rule starts with a pending force flag so the whole table fires on the first
// tick after boot. A rule's action is a Task; firing a rule only posts the Task's
// event kind, the slow work happens in the dispatch loop.
package schedule
