// Package flathits loads detector hits from structured simulation files into
// a flat, column-oriented table and answers per-event queries over it.
//
// # Quick Start
//
//	store := blobstore.NewLocalStore("./runs")
//	reader := hitfile.NewReader(store)
//
//	cdc, err := flathits.New(ctx, reader, "run042.hits",
//	    flathits.WithGeometry(catalog.CDC),
//	    flathits.WithSelection("Edep > 0"),
//	    flathits.WithEmptyColumns(catalog.Empty("Weight")),
//	)
//	if err != nil { ... }
//	defer cdc.Close()
//
//	// Hits of events 3 and 7, grouped per event.
//	hits, _ := cdc.GetEvents(event.IDs(3, 7))
//
//	// Non-destructive filter and in-place trim.
//	fast, _ := cdc.FilterHits("DriftTime", flathits.LessThan(400))
//	_ = cdc.TrimHits("Edep", flathits.GreaterThan(1e-6))
//
// # Columns
//
// Column names carry the geometry prefix ("CDCHit.fEdep"). Every method that
// takes a column name also accepts it bare ("Edep"); the prefix is added.
// Two derived columns are maintained after every load, trim and sort:
// <prefix>event_index (dense event position) and <prefix>hits_index (row
// position).
//
// # Empty results
//
// A filter or trim that matches nothing is not a failure. It returns a valid
// empty result together with a *EmptyResultWarning, which satisfies
// errors.Is(err, ErrEmptyResult).
//
// # Sources
//
// Any source.Reader can back a FlatHits: source.Memory for tests and
// in-process data, hitfile.Reader for columnar hit files on a local disk,
// S3 or MinIO.
package flathits
