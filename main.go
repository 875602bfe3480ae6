package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/imagebank/backend/blobstore"
	"github.com/imagebank/backend/config"
	"github.com/imagebank/backend/database"
	"github.com/imagebank/backend/facecloud"
	"github.com/imagebank/backend/gallery"
	"github.com/imagebank/backend/handlers"
	"github.com/imagebank/backend/repository"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	db, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}

	blobs, err := blobstore.New(cfg.StoragePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize blob store: %v", err)
	}

	userRepo := repository.NewGormUserRepository(db)
	imageRepo := repository.NewGormImageRepository(db)
	faceRepo := repository.NewGormFaceRepository(db)

	detector := facecloud.NewClient(cfg.FaceAPIURL, cfg.FaceAPIKey, cfg.FaceAPITimeout)
	galleryService := gallery.NewService(imageRepo, faceRepo, blobs, detector, cfg.AllowedExtensions)

	log.Printf("Serving blobs from: %s", cfg.StoragePath)
	log.Printf("Using database: %s", cfg.DatabasePath)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsHandler.Handler)

	authHandler := handlers.NewAuthHandler(userRepo, cfg)
	galleryHandler := handlers.NewGalleryHandler(galleryService)
	previewHandler := handlers.NewPreviewHandler(galleryService)
	adminUserHandler := handlers.NewAdminUserHandler(userRepo)

	authed := func(h http.HandlerFunc) http.Handler {
		return handlers.AuthMiddleware(cfg, userRepo, h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return handlers.AuthMiddleware(cfg, userRepo, handlers.RequireAdmin(h))
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Method(http.MethodGet, "/me", authed(authHandler.CurrentUser))
		})

		r.Route("/images", func(r chi.Router) {
			r.Get("/", galleryHandler.ListImages)
			r.Method(http.MethodPost, "/", authed(galleryHandler.UploadImage))
			r.Route("/{image_id}", func(r chi.Router) {
				r.Get("/", galleryHandler.GetImage)
				r.Method(http.MethodPut, "/", authed(galleryHandler.EditImage))
				r.Method(http.MethodDelete, "/", authed(galleryHandler.DeleteImage))
				r.Method(http.MethodPost, "/detect", authed(galleryHandler.DetectFaces))
				r.Get("/preview", previewHandler.ServeAnnotatedPreview)
			})
		})

		r.Get("/files/{filename}", galleryHandler.ShowImage)

		r.Route("/admin/users", func(r chi.Router) {
			r.Method(http.MethodGet, "/", adminOnly(adminUserHandler.ListUsers))
			r.Method(http.MethodPut, "/{user_id}/admin", adminOnly(adminUserHandler.SetAdmin))
			r.Method(http.MethodDelete, "/{user_id}", adminOnly(adminUserHandler.DeleteUser))
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
