package repository

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/imagebank/backend/database"
	"github.com/imagebank/backend/models"
	"github.com/imagebank/backend/utils"
)

// In-memory repository implementations used by tests. They mirror the
// transactional behaviour of the GORM repositories, including rollback of
// the image insert when the blob callback fails.

type MemoryUserRepository struct {
	mu    sync.Mutex
	seq   uint
	users map[uint]models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[uint]models.User)}
}

func (r *MemoryUserRepository) Create(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == user.Username {
			return fmt.Errorf("UNIQUE constraint failed: users.username")
		}
	}
	r.seq++
	user.ID = r.seq
	user.CreatedAt = time.Now()
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) GetByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *MemoryUserRepository) GetByUsername(username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			u := u
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *MemoryUserRepository) ListAll() ([]models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]models.User, 0, len(r.users))
	for _, u := range r.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (r *MemoryUserRepository) SetAdmin(id uint, isAdmin bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.IsAdmin = isAdmin
	r.users[id] = u
	return nil
}

func (r *MemoryUserRepository) Delete(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) incrementUploadCount(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.UploadCount++
		r.users[id] = u
	}
}

func (r *MemoryUserRepository) decrementUploadCount(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok && u.UploadCount > 0 {
		u.UploadCount--
		r.users[id] = u
	}
}

type MemoryImageRepository struct {
	mu     sync.Mutex
	seq    uint
	images map[uint]models.Image
	Users  *MemoryUserRepository
	Faces  *MemoryFaceRepository
}

func NewMemoryImageRepository(users *MemoryUserRepository, faces *MemoryFaceRepository) *MemoryImageRepository {
	return &MemoryImageRepository{
		images: make(map[uint]models.Image),
		Users:  users,
		Faces:  faces,
	}
}

func (r *MemoryImageRepository) Create(img *models.Image, ext string, writeBlob func(filename string) error) error {
	r.mu.Lock()
	r.seq++
	img.ID = r.seq
	img.CreatedAt = time.Now()
	img.Filename = fmt.Sprintf("image%d.%s", img.ID, ext)
	r.images[img.ID] = *img
	r.mu.Unlock()

	r.Users.incrementUploadCount(img.AuthorID)

	if err := writeBlob(img.Filename); err != nil {
		// roll the whole transaction back
		r.mu.Lock()
		delete(r.images, img.ID)
		r.mu.Unlock()
		r.Users.decrementUploadCount(img.AuthorID)
		return err
	}
	return nil
}

func (r *MemoryImageRepository) GetByID(id uint) (*models.Image, error) {
	r.mu.Lock()
	img, ok := r.images[id]
	r.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	// the GORM implementation preloads the face rows
	if r.Faces != nil {
		faces, err := r.Faces.ListByImageID(id)
		if err != nil {
			return nil, err
		}
		img.Faces = faces
	}
	return &img, nil
}

func (r *MemoryImageRepository) entry(img models.Image) ImageListEntry {
	e := ImageListEntry{
		ID:        img.ID,
		Filename:  img.Filename,
		AuthorID:  img.AuthorID,
		About:     img.About,
		CreatedAt: img.CreatedAt,
	}
	if u, err := r.Users.GetByID(img.AuthorID); err == nil {
		e.Username = u.Username
	}
	return e
}

func (r *MemoryImageRepository) GetWithAuthor(id uint) (*ImageListEntry, error) {
	r.mu.Lock()
	img, ok := r.images[id]
	r.mu.Unlock()
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	e := r.entry(img)
	return &e, nil
}

func (r *MemoryImageRepository) List(sortOrder string) ([]ImageListEntry, error) {
	r.mu.Lock()
	images := make([]models.Image, 0, len(r.images))
	for _, img := range r.images {
		images = append(images, img)
	}
	r.mu.Unlock()

	entries := make([]ImageListEntry, 0, len(images))
	for _, img := range images {
		entries = append(entries, r.entry(img))
	}

	switch sortOrder {
	case database.SortCreatedAsc:
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	case database.SortFilenameNat:
		sort.SliceStable(entries, func(i, j int) bool {
			return natsort.Compare(entries[i].Filename, entries[j].Filename)
		})
	default:
		sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })
	}
	return entries, nil
}

func (r *MemoryImageRepository) UpdateAbout(id uint, about string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	img.About = about
	r.images[id] = img
	return nil
}

func (r *MemoryImageRepository) UpdateMetadata(id uint, meta *utils.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	img.Width = meta.Width
	img.Height = meta.Height
	img.TakenAt = meta.TakenAt
	img.CameraMake = meta.CameraMake
	img.CameraModel = meta.CameraModel
	r.images[id] = img
	return nil
}

func (r *MemoryImageRepository) DeleteWithFaces(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.images[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.images, id)
	if r.Faces != nil {
		r.Faces.deleteByImageID(id)
	}
	return nil
}

type MemoryFaceRepository struct {
	mu    sync.Mutex
	seq   uint
	faces map[uint]models.Face
	// when set, CreateBatch fails after this many inserts to simulate a
	// mid-batch error
	FailAfter int
}

func NewMemoryFaceRepository() *MemoryFaceRepository {
	return &MemoryFaceRepository{faces: make(map[uint]models.Face)}
}

func (r *MemoryFaceRepository) Create(face *models.Face) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	face.ID = r.seq
	r.faces[face.ID] = *face
	return nil
}

func (r *MemoryFaceRepository) CreateBatch(faces []models.Face) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailAfter > 0 && len(faces) > r.FailAfter {
		return fmt.Errorf("simulated batch insert failure")
	}
	for i := range faces {
		r.seq++
		faces[i].ID = r.seq
		r.faces[faces[i].ID] = faces[i]
	}
	return nil
}

func (r *MemoryFaceRepository) ListByImageID(imageID uint) ([]models.Face, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	faces := []models.Face{}
	for _, f := range r.faces {
		if f.ImageID == imageID {
			faces = append(faces, f)
		}
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].ID < faces[j].ID })
	return faces, nil
}

func (r *MemoryFaceRepository) deleteByImageID(imageID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.faces {
		if f.ImageID == imageID {
			delete(r.faces, id)
		}
	}
}
