// Package tabs owns the ordered set of tabs and the single active tab.
//
// Structural operations (create, close, switch, hide, show) run one at a time
// on the Manager's actor goroutine in the order they were issued. Readers get
// copies taken under a read lock, so they never observe two active tabs or an
// active id that is not in the list.
package tabs
