// Package sentinel provides an immutable error type for sentinel declarations.
//
// procenv classifies failures (launch errors, poll timeouts, closed pools) by
// const sentinels of type Error, so callers match them with errors.Is through
// any number of wrapping layers and no package can reassign them.
package sentinel
