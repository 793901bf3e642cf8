// Package ecstore is a concurrent columnar storage engine for
// entity-component-system workloads.
//
// # Overview
//
// Components are stored in per-archetype column stores built on a
// shared pool of fixed 4 KiB blocks. Entities carry stable 64-bit
// external IDs; dense storage stays packed through a cooperative
// compaction pass that runs only when no views are live. Writers
// update blocks RCU-style (copy, mutate, publish by pointer swap), so
// readers never block on writers.
//
// # Usage
//
//	if err := ecstore.InitPool(1 << 16); err != nil { // 256 MiB slab
//		log.Fatal(err)
//	}
//	defer ecstore.DestroyPool()
//
//	st, err := ecstore.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer st.Close()
//
//	posID, _ := ecstore.Register[Position](st)
//	velID, _ := ecstore.Register[Velocity](st)
//	arch := ecstore.NewArchetype(posID, velID)
//
//	view, _ := st.Create(ctx, arch, 1024)
//	for it := view.Iter(); it.Next(); {
//		*ecstore.Get[Position](it) = Position{X: 1}
//	}
//	view.Release()
//
//	q := ecstore.NewQuery().Read(posID).Write(velID)
//	res := st.RunQuery(q)
//	for it := res.Iter(); it.Next(); {
//		ecstore.Get[Velocity](it).X += ecstore.Get[Position](it).X
//	}
//	res.Release()
//
// # Lifecycle
//
// Views are refcounted. Releasing the last view over a store gates off
// new views, drains retired RCU blocks and compacts deleted slots, so
// long-running iterations simply defer compaction rather than racing
// it. Component types must be pointer-free and at least one word wide;
// their data lives off the Go heap in the block pool.
package ecstore
