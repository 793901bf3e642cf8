package ecstore_test

import (
	"context"
	"fmt"
	"log"

	"github.com/neketka/ecstore"
)

type Position struct {
	X, Y uint64
}

type Velocity struct {
	DX, DY uint64
}

func Example() {
	pool, err := ecstore.NewPool(1024, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	st, err := ecstore.New(ecstore.WithPool(pool))
	if err != nil {
		log.Fatal(err)
	}
	defer st.Close()

	posID, err := ecstore.Register[Position](st)
	if err != nil {
		log.Fatal(err)
	}
	velID, err := ecstore.Register[Velocity](st)
	if err != nil {
		log.Fatal(err)
	}

	// Spawn three moving entities.
	view, err := st.Create(context.Background(), ecstore.NewArchetype(posID, velID), 3)
	if err != nil {
		log.Fatal(err)
	}
	for it := view.Iter(); it.Next(); {
		*ecstore.Get[Velocity](it) = Velocity{DX: 1, DY: 2}
	}
	view.Release()

	// One simulation step: integrate velocity into position.
	step := st.RunQuery(ecstore.NewQuery().Write(posID).Read(velID))
	for it := step.Iter(); it.Next(); {
		pos := ecstore.Get[Position](it)
		vel := ecstore.Get[Velocity](it)
		pos.X += vel.DX
		pos.Y += vel.DY
	}
	step.Release()

	var sumX, sumY uint64
	res := st.RunQuery(ecstore.NewQuery().Read(posID))
	for it := res.Iter(); it.Next(); {
		sumX += ecstore.Get[Position](it).X
		sumY += ecstore.Get[Position](it).Y
	}
	res.Release()

	fmt.Println(sumX, sumY)
	// Output: 3 6
}
