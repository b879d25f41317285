package book

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
	"github.com/Merodami/book-library-tool-ddd-sub001/internal/event"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func fltPtr(f float64) *float64 { return &f }

func mustRehydrate(t *testing.T, events []event.Envelope) *Book {
	t.Helper()
	b := New()
	require.NoError(t, rehydrateTestHelper(b, events))
	return b
}

func rehydrateTestHelper(b *Book, events []event.Envelope) error {
	for i, e := range events {
		if err := b.Apply(e); err != nil {
			return err
		}
		b.Version = i + 1
	}
	return nil
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	now := time.Now().UTC()
	_, err := Create(uuid.New(), CreateInput{Title: "", Author: "a", Publisher: "p", PublicationYear: 2000, Price: 1}, now)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = Create(uuid.New(), CreateInput{Title: "t", Author: "a", Publisher: "p", PublicationYear: 2000, Price: -1}, now)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateThenUpdateThenDelete(t *testing.T) {
	now := time.Now().UTC()
	id := uuid.New()
	created, err := Create(id, CreateInput{
		ISBN: "978-0-00-000000-0", Title: "Dune", Author: "Herbert",
		Publisher: "Chilton", PublicationYear: 1965, Price: 12.5,
	}, now)
	require.NoError(t, err)

	b := mustRehydrate(t, []event.Envelope{created})
	assert.Equal(t, "Dune", b.Title)
	assert.False(t, b.Deleted)

	updated, err := b.Update(UpdateInput{Title: strPtr("Dune (Deluxe)")}, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, b.Apply(updated))
	assert.Equal(t, "Dune (Deluxe)", b.Title)
	assert.Equal(t, "Herbert", b.Author)

	deleted, err := b.Delete(now.Add(2 * time.Hour))
	require.NoError(t, err)
	require.NoError(t, b.Apply(deleted))
	assert.True(t, b.Deleted)

	_, err = b.Update(UpdateInput{Title: strPtr("x")}, now)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBookAlreadyDeleted))

	_, err = b.Delete(now)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBookAlreadyDeleted))
}

func TestUpdateOnlyIncludesChangedFields(t *testing.T) {
	now := time.Now().UTC()
	id := uuid.New()
	created, err := Create(id, CreateInput{
		ISBN: "x", Title: "T", Author: "A", Publisher: "P", PublicationYear: 2000, Price: 10,
	}, now)
	require.NoError(t, err)
	b := mustRehydrate(t, []event.Envelope{created})

	env, err := b.Update(UpdateInput{Title: strPtr("T"), Price: fltPtr(20)}, now)
	require.NoError(t, err)

	var payload Updated
	require.NoError(t, env.Decode(&payload))
	_, hasTitle := payload.Updated["title"]
	assert.False(t, hasTitle, "unchanged title must not appear in the diff")
	assert.Equal(t, 20.0, payload.Updated["price"])
}
