// Package core holds the purchase-order import logic.
//
// Nothing here knows about HTTP or a particular database. Web handlers and
// tests drive the package through [Service]; storage is reached through
// the [VendorRegistry], [OrderStore] and [WorkflowStore] interfaces.
//
// # Upload flow
//
//  1. [Service.ValidateUpload] reads the Input sheet of an .xlsx/.xlsm
//     workbook (CSV is converted first) and validates headers, cells and
//     amount cross-checks with [TemplateValidator].
//  2. Every distinct vendor and delivery name is matched against the
//     registry by [Matcher]: exact name first, then edit-distance
//     similarity of at least 0.8.
//  3. [Suggester] proposes corrections for dates, numbers, emails,
//     categories and vendor names. The result is kept as a session.
//  4. [Service.ApplySuggestions] writes chosen corrections into the
//     session and validates again.
//  5. [Service.Finalize] groups rows by order number and stores the orders.
//
// # Workflows
//
// The order wizard is a five-step state machine ([Workflow]) with an
// optional approve step and a declarative processing pipeline. Workflows
// are stored as JSON records with a short recently-used list.
//
// # Error handling
//
// Operations return wrapped sentinel errors. [MapError] turns them into a
// [UserMessage] with a support code.
package core
