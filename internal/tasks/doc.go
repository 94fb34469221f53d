// Package tasks implements the reconciliation engine: normalizing raw spins,
// resolving them against the catalog, and converging remote playlists with
// real-time progress reporting.
//
// # Pipeline
//
// [StationEngine.SyncStation] runs the full per-station pipeline:
//
//  1. Fetch raw spins for the window from the spin source.
//  2. Group by show, drop ignored shows, and [Normalize] each group into a
//     canonical list: whitespace collapsed, malformed spins counted and
//     dropped, duplicates collapsed to the highest source id, ascending
//     broadcast order.
//  3. Reconcile each show through a bounded worker pool ([SyncOpts.Workers],
//     default 5, capped at 10).
//
// [StationEngine.SyncShow] is the per-show state machine: resolve or create
// the playlist record, partition spins against the watermark, resolve pending
// spins through the [Resolver], append in batches skipping existing
// membership, then advance the watermark and mirror it into the playlist
// description ("Latest ID: N"). The watermark only moves over spins whose
// appends landed, so an interrupted run resumes exactly where it stopped, and
// a run with nothing pending makes no search or mutation calls at all.
//
// # Resolution
//
// The [Resolver] consults the track cache first, then queries the catalog
// with decreasing specificity and ranks candidates with [RankCandidates]:
// exact artist+title matches first, then album agreement, popularity, and
// first-result order, with a similarity floor below which a spin is NotFound.
// Definitive outcomes (including NotFound) are cached; transient failures are
// retried with exponential backoff and, once exhausted, fail the run without
// caching so the next run retries.
//
// # Progress Reporting
//
// All operations send [ProgressUpdate] values through non-blocking channel
// writes, so a slow or absent consumer never stalls reconciliation.
package tasks
