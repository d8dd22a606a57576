package lectern_test

import (
	"context"
	"fmt"
	"log"

	"github.com/tsawler/lectern"
	"github.com/tsawler/lectern/annotations"
	"github.com/tsawler/lectern/geom"
	"github.com/tsawler/lectern/scrollsync"
	"github.com/tsawler/lectern/search"
)

// These examples verify the package documentation samples compile
// correctly. They are not meant to be run as actual tests since they
// require files.

func Example_openAndInspect() {
	session, err := lectern.Open("document.pdf")
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	meta := session.Metadata()
	fmt.Println("Title:", meta.Title)
	fmt.Println("Pages:", session.PageCount())

	text, err := session.Text(context.Background(), 1)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(text)
}

func Example_openWithOptions() {
	// Format is sniffed from the bytes, so one call covers PDF, EPUB,
	// CBZ and plain images.
	session, err := lectern.Open("locked.pdf",
		lectern.WithPassword("hunter2"),
		lectern.WithMode(scrollsync.ModeContinuous))
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	// In-memory documents carry no file name; supply one.
	data := []byte{}
	session2, err := lectern.OpenBytes(data, lectern.WithName("report.pdf"))
	_ = session2
	_ = err
}

func Example_viewControl() {
	session := lectern.Must(lectern.Open("document.pdf"))
	defer session.Close()

	// Report the window size before using fit modes.
	session.SetViewportSize(geom.Size{W: 1280, H: 960})
	session.Wait()
	session.Refresh()

	session.FitWidth()
	session.NextPage()
	session.ZoomIn()

	fmt.Printf("page %d at %.0f%%\n", session.CurrentPage(), session.Zoom()*100)
}

func Example_annotations() {
	session := lectern.Must(lectern.Open("document.pdf"))
	defer session.Close()

	store := session.Annotations()

	// Positions are fractions of the page, stable across zoom and
	// rotation.
	id, err := store.Add(annotations.Annotation{
		Type:       annotations.TypeHighlight,
		PageNumber: 1,
		Position:   annotations.Position{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.04},
		Color:      "#ffeb3b",
	})
	if err != nil {
		log.Fatal(err)
	}
	_ = id

	store.Undo() // removes the highlight
	store.Redo() // puts it back

	data, err := store.EncodeJSON()
	if err != nil {
		log.Fatal(err)
	}
	_ = data
}

func Example_pageArrangement() {
	session := lectern.Must(lectern.Open("document.pdf"))
	defer session.Close()

	// Visual positions are 1-based. Annotations and search results
	// keep referring to original page numbers.
	if err := session.MovePage(1, session.PageCount()); err != nil {
		log.Fatal(err)
	}
	if err := session.RotatePage(1); err != nil {
		log.Fatal(err)
	}
	if err := session.RemovePage(2); err != nil {
		log.Fatal(err)
	}
	fmt.Println("order:", session.Order())
}

func Example_saveAndRestore() {
	session := lectern.Must(lectern.Open("document.pdf"))
	state, err := session.SaveState()
	if err != nil {
		log.Fatal(err)
	}
	session.Close()

	// The state only loads back into the same document content.
	later := lectern.Must(lectern.Open("document.pdf"))
	defer later.Close()
	if err := later.LoadState(state); err != nil {
		log.Fatal(err)
	}
}

func Example_search() {
	session := lectern.Must(lectern.Open("document.pdf"))
	defer session.Close()

	srch := session.Search(context.Background(), "tide", search.Options{MaxResults: 50})
	for ev := range srch.Events() {
		switch ev.Kind {
		case search.EventMatch:
			fmt.Printf("page %d: %s\n", ev.Match.PageNumber, ev.Match.Snippet)
		case search.EventDone:
			fmt.Println("matches:", len(srch.Results()))
		}
	}

	// Step through the hits, wrapping at either end.
	match, ok := srch.Next()
	_ = match
	_ = ok
}
