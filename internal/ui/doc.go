// Package ui provides the terminal interface for orderdesk.
//
// The UI is a Bubble Tea program. Model holds view state only; every
// mutation goes through the Controller (in practice app.Portal) on a
// tea.Cmd so the event loop never blocks on the network or the store.
// Results come back as actionMsg and are shown as a toast on the status line.
//
// # Views
//
//   - Orders: the history for one requested date (or all days), grouped by
//     store, with a fulfillment badge per order.
//   - Detail: the lines of one order. p/u/n and +/- record what was
//     collected; each change is pushed to the sheet in the background.
//   - Catalog: the ordering wizard. Steps follow the category order;
//     +/- change the draft quantity, m edits the order header, s submits.
//   - Log: a tail of the application log with a text filter. "i" narrows it
//     to the most recent request id.
//
// # Data flow
//
//  1. Run starts the program with the state.Store snapshot.
//  2. A 1s tick and the Changes channel both refetch the snapshot.
//  3. Notices queued by the fulfillment pushes are drained into the toast.
//  4. A terminal focus event calls Controller.Focus to reload shared state.
//
// Refreshing the catalog while the draft has unsaved changes asks for
// confirmation first.
//
// # Key Bindings
//
//   - o/c/l: Orders, Catalog, Log
//   - [ ]: Previous and next day, a toggles all days
//   - enter: Open order, esc: back to orders
//   - r: Refresh orders, R: Refresh catalog
//   - x: Save the missing items report for the selected day
//   - X: Save the history workbook for the selected day
//   - v: Compare how much each store ordered of a product or category
//   - M: Save a filtered missing items report
//   - T: Cycle theme (saved to preferences)
//   - e or Ctrl+C: Exit
package ui
