package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imagebank/backend/blobstore"
	"github.com/imagebank/backend/database"
	"github.com/imagebank/backend/facecloud"
	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/repository"
)

type fakeDetector struct {
	detectFn func(ctx context.Context, image io.Reader) (*facecloud.Result, error)
}

func (f *fakeDetector) Detect(ctx context.Context, image io.Reader) (*facecloud.Result, error) {
	if f.detectFn == nil {
		return &facecloud.Result{Faces: []facecloud.FaceRecord{}, Raw: json.RawMessage(`[]`)}, nil
	}
	return f.detectFn(ctx, image)
}

func (f *fakeDetector) Configured() bool { return true }

type fixture struct {
	users    *repository.MemoryUserRepository
	images   *repository.MemoryImageRepository
	faces    *repository.MemoryFaceRepository
	blobs    *blobstore.Store
	detector *fakeDetector
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := blobstore.New(t.TempDir())
	require.NoError(t, err)

	users := repository.NewMemoryUserRepository()
	faces := repository.NewMemoryFaceRepository()
	images := repository.NewMemoryImageRepository(users, faces)
	detector := &fakeDetector{}

	allowed := map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true}
	return &fixture{
		users:    users,
		images:   images,
		faces:    faces,
		blobs:    blobs,
		detector: detector,
		service:  NewService(images, faces, blobs, detector, allowed),
	}
}

func (f *fixture) addUser(t *testing.T, username string, admin bool) *models.User {
	t.Helper()
	u := &models.User{Username: username, IsAdmin: admin}
	require.NoError(t, u.SetPassword("secret"))
	require.NoError(t, f.users.Create(u))
	return u
}

func (f *fixture) upload(t *testing.T, owner *models.User, caption, name, content string) *models.Image {
	t.Helper()
	img, err := f.service.Create(owner, caption, name, strings.NewReader(content))
	require.NoError(t, err)
	return img
}

func TestCreateStoresBlobAndMetadata(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)

	img := f.upload(t, alice, "my cat", "cat.jpg", "jpeg-bytes")

	require.Equal(t, fmt.Sprintf("image%d.jpg", img.ID), img.Filename)
	require.True(t, f.blobs.Exists(img.Filename))

	entry, err := f.service.Retrieve(img.ID, alice, false)
	require.NoError(t, err)
	require.Equal(t, alice.ID, entry.AuthorID)
	require.Equal(t, "alice", entry.Username)
	require.Equal(t, "my cat", entry.About)

	refreshed, err := f.users.GetByID(alice.ID)
	require.NoError(t, err)
	require.Equal(t, 1, refreshed.UploadCount)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)

	var validationErr *ValidationError

	_, err := f.service.Create(alice, "", "cat.jpg", strings.NewReader("x"))
	require.ErrorAs(t, err, &validationErr)

	_, err = f.service.Create(alice, "caption", "evil.exe", strings.NewReader("x"))
	require.ErrorAs(t, err, &validationErr)

	_, err = f.service.Create(alice, "caption", "noextension", strings.NewReader("x"))
	require.ErrorAs(t, err, &validationErr)

	// extension matching is case-insensitive
	_, err = f.service.Create(alice, "caption", "CAT.JPG", strings.NewReader("x"))
	require.NoError(t, err)

	// failed attempts must not bump the upload count
	refreshed, err := f.users.GetByID(alice.ID)
	require.NoError(t, err)
	require.Equal(t, 1, refreshed.UploadCount)
}

func TestCreateConflictLeavesNoState(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)

	// occupy the filename the next insert will be assigned
	require.NoError(t, f.blobs.Save("image1.jpg", strings.NewReader("squatter")))

	_, err := f.service.Create(alice, "caption", "cat.jpg", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrConflict)

	entries, err := f.service.List("")
	require.NoError(t, err)
	require.Empty(t, entries)

	refreshed, err := f.users.GetByID(alice.ID)
	require.NoError(t, err)
	require.Equal(t, 0, refreshed.UploadCount)

	// squatter blob untouched
	file, _, err := f.blobs.Open("image1.jpg")
	require.NoError(t, err)
	defer file.Close()
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, "squatter", string(data))
}

func TestListOrder(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)

	first := f.upload(t, alice, "first", "a.jpg", "1")
	second := f.upload(t, alice, "second", "b.jpg", "2")

	entries, err := f.service.List("")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// newest first
	require.Equal(t, second.ID, entries[0].ID)
	require.Equal(t, first.ID, entries[1].ID)
}

func TestListSortOrders(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)

	// enough uploads that image10.jpg exists; a plain string sort would
	// place it before image2.jpg
	var ids []uint
	for i := 0; i < 10; i++ {
		img := f.upload(t, alice, fmt.Sprintf("caption %d", i), "cat.jpg", "x")
		ids = append(ids, img.ID)
	}

	entries, err := f.service.List(database.SortCreatedAsc)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	for i, entry := range entries {
		require.Equal(t, ids[i], entry.ID)
	}

	entries, err = f.service.List(database.SortFilenameNat)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	require.Equal(t, "image1.jpg", entries[0].Filename)
	require.Equal(t, "image2.jpg", entries[1].Filename)
	require.Equal(t, "image10.jpg", entries[9].Filename)
}

func TestRectangles(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	faces, err := f.service.Rectangles(img.ID)
	require.NoError(t, err)
	require.NotNil(t, faces)
	require.Empty(t, faces)

	_, err = f.service.Edit(img.ID, alice, "mine", &Rectangle{X1: 1, Y1: 2, X2: 3, Y2: 4})
	require.NoError(t, err)
	_, err = f.service.Edit(img.ID, alice, "mine", &Rectangle{X1: 5, Y1: 6, X2: 7, Y2: 8})
	require.NoError(t, err)

	faces, err = f.service.Rectangles(img.ID)
	require.NoError(t, err)
	require.Len(t, faces, 2)
	require.Equal(t, 1, faces[0].X1)
	require.Equal(t, 5, faces[1].X1)

	_, err = f.service.Rectangles(9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAnonymousForbidden(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(nil, "caption", "cat.jpg", strings.NewReader("x"))
	require.ErrorIs(t, err, ErrForbidden)

	entries, err := f.service.List("")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestRetrieveOwnership(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	bob := f.addUser(t, "bob", false)
	admin := f.addUser(t, "root", true)

	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	_, err := f.service.Retrieve(img.ID, bob, true)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Retrieve(img.ID, nil, true)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = f.service.Retrieve(img.ID, alice, true)
	require.NoError(t, err)

	_, err = f.service.Retrieve(img.ID, admin, true)
	require.NoError(t, err)

	_, err = f.service.Retrieve(9999, alice, true)
	require.ErrorIs(t, err, ErrNotFound)

	// reads without the ownership flag are open to anyone
	_, err = f.service.Retrieve(img.ID, bob, false)
	require.NoError(t, err)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	_, err := f.service.Edit(img.ID, alice, "mine", &Rectangle{X1: 1, Y1: 2, X2: 3, Y2: 4})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(img.ID, alice))

	_, err = f.service.Retrieve(img.ID, alice, false)
	require.ErrorIs(t, err, ErrNotFound)

	faces, err := f.faces.ListByImageID(img.ID)
	require.NoError(t, err)
	require.Empty(t, faces)

	require.False(t, f.blobs.Exists(img.Filename))
}

func TestDeleteForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	bob := f.addUser(t, "bob", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	err := f.service.Delete(img.ID, bob)
	require.ErrorIs(t, err, ErrForbidden)

	entries, err := f.service.List("")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestDeleteToleratesMissingBlob(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	require.NoError(t, f.blobs.Delete(img.Filename))
	require.NoError(t, f.service.Delete(img.ID, alice))

	_, err := f.service.Retrieve(img.ID, alice, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEditCaptionOnlyIsIdempotentForRectangles(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	for i := 0; i < 3; i++ {
		faces, err := f.service.Edit(img.ID, alice, "new caption", nil)
		require.NoError(t, err)
		require.Empty(t, faces)
	}

	entry, err := f.service.Retrieve(img.ID, alice, false)
	require.NoError(t, err)
	require.Equal(t, "new caption", entry.About)
}

func TestEditAppendsRectangles(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	faces, err := f.service.Edit(img.ID, alice, "mine", &Rectangle{X1: 10, Y1: 20, X2: 30, Y2: 40})
	require.NoError(t, err)
	require.Len(t, faces, 1)

	faces, err = f.service.Edit(img.ID, alice, "mine", &Rectangle{X1: 5, Y1: 5, X2: 6, Y2: 6})
	require.NoError(t, err)
	require.Len(t, faces, 2)

	for _, face := range faces {
		require.GreaterOrEqual(t, face.X2, face.X1)
		require.GreaterOrEqual(t, face.Y2, face.Y1)
	}
}

func TestEditRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	var validationErr *ValidationError

	_, err := f.service.Edit(img.ID, alice, "", nil)
	require.ErrorAs(t, err, &validationErr)

	_, err = f.service.Edit(img.ID, alice, "ok", &Rectangle{X1: 30, Y1: 20, X2: 10, Y2: 40})
	require.ErrorAs(t, err, &validationErr)

	_, err = f.service.Edit(img.ID, alice, "ok", &Rectangle{X1: -1, Y1: 0, X2: 10, Y2: 10})
	require.ErrorAs(t, err, &validationErr)

	// nothing was appended by the rejected submissions
	faces, err := f.faces.ListByImageID(img.ID)
	require.NoError(t, err)
	require.Empty(t, faces)
}

func TestDetectFacesConvertsAndCaches(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	raw := `[{"faceId":"abc","faceRectangle":{"left":10,"top":20,"width":30,"height":40}},` +
		`{"faceId":"def","faceRectangle":{"left":1,"top":2,"width":3,"height":4}}]`
	f.detector.detectFn = func(ctx context.Context, image io.Reader) (*facecloud.Result, error) {
		var records []facecloud.FaceRecord
		require.NoError(t, json.Unmarshal([]byte(raw), &records))
		return &facecloud.Result{Faces: records, Raw: json.RawMessage(raw)}, nil
	}

	outcome, err := f.service.DetectFaces(context.Background(), img.ID, alice)
	require.NoError(t, err)
	require.Equal(t, "face rectangles added", outcome.Message)
	require.Len(t, outcome.Faces, 2)

	require.Equal(t, 10, outcome.Faces[0].X1)
	require.Equal(t, 20, outcome.Faces[0].Y1)
	require.Equal(t, 40, outcome.Faces[0].X2)
	require.Equal(t, 60, outcome.Faces[0].Y2)

	cacheName := fmt.Sprintf("faces_image%d.json", img.ID)
	require.Equal(t, cacheName, outcome.CacheDocument)
	require.True(t, f.blobs.Exists(cacheName))

	// cached document is the pretty-printed raw payload
	path, err := f.blobs.FullPath(cacheName)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var roundTrip []facecloud.FaceRecord
	require.NoError(t, json.Unmarshal(data, &roundTrip))
	require.Len(t, roundTrip, 2)
	require.Equal(t, "abc", roundTrip[0].FaceID)
}

func TestDetectFacesZeroResults(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	outcome, err := f.service.DetectFaces(context.Background(), img.ID, alice)
	require.NoError(t, err)
	require.Equal(t, "no faces detected", outcome.Message)
	require.Empty(t, outcome.Faces)
	require.Empty(t, outcome.CacheDocument)

	faces, err := f.faces.ListByImageID(img.ID)
	require.NoError(t, err)
	require.Empty(t, faces)

	// zero faces means no cache document either
	require.False(t, f.blobs.Exists(fmt.Sprintf("faces_image%d.json", img.ID)))
}

func TestDetectFacesUpstreamFailure(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	f.detector.detectFn = func(ctx context.Context, image io.Reader) (*facecloud.Result, error) {
		return nil, errors.New("connection refused")
	}

	var upstreamErr *UpstreamError
	_, err := f.service.DetectFaces(context.Background(), img.ID, alice)
	require.ErrorAs(t, err, &upstreamErr)

	faces, err := f.faces.ListByImageID(img.ID)
	require.NoError(t, err)
	require.Empty(t, faces)
}

func TestDetectFacesForbiddenForNonOwner(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	bob := f.addUser(t, "bob", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "x")

	_, err := f.service.DetectFaces(context.Background(), img.ID, bob)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestShowStreamsBlob(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice", false)
	img := f.upload(t, alice, "mine", "cat.jpg", "raw image bytes")

	file, info, err := f.service.Show(img.Filename)
	require.NoError(t, err)
	defer file.Close()
	require.Equal(t, int64(len("raw image bytes")), info.Size())

	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, "raw image bytes", string(data))

	_, _, err = f.service.Show("image9999.jpg")
	require.ErrorIs(t, err, ErrNotFound)

	_, _, err = f.service.Show(filepath.Join("..", "escape.jpg"))
	require.Error(t, err)
}
