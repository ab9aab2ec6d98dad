package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"voicenotes/internal/ai"
	"voicenotes/internal/audio"
	"voicenotes/internal/auth"
	"voicenotes/internal/cache"
	"voicenotes/internal/handlers"
	"voicenotes/internal/notes"
	"voicenotes/internal/prefs"
	"voicenotes/internal/stats"
	"voicenotes/internal/store"
)

func main() {
	port := flag.Int("port", 2026, "Server port")
	dataDir := flag.String("data", "./data", "Data directory")
	audioFormat := flag.String("audio-format", "", "ffmpeg input format (alsa, avfoundation, ...)")
	audioInput := flag.String("audio-input", "", "ffmpeg input device")
	generateLink := flag.Bool("generate-link", false, "Generate a new login link")
	flag.Parse()

	// .env is optional; flags and real env vars win.
	godotenv.Load()

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(*dataDir, "voicenotes.db")
	st, err := store.New(dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer st.Close()

	prefsSecret := os.Getenv("PREFS_KEY")
	if prefsSecret == "" {
		prefsSecret = generateSecret("PREFS_KEY")
	}
	pr, err := prefs.Open(filepath.Join(*dataDir, "prefs"), prefsSecret)
	if err != nil {
		log.Fatalf("Failed to open preference store: %v", err)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecret("JWT_SECRET")
	}

	a := auth.New(st, jwtSecret)

	if *generateLink {
		baseURL := os.Getenv("BASE_URL")
		if baseURL == "" {
			baseURL = fmt.Sprintf("http://localhost:%d", *port)
		}
		link, err := a.GenerateLoginLink(baseURL)
		if err != nil {
			log.Fatalf("Failed to generate login link: %v", err)
		}
		fmt.Printf("\n=== Owner Login Link (single use, valid for 24 hours) ===\n%s\n\n", link)
		return
	}

	gemini := ai.NewGemini(os.Getenv("GEMINI_BASE_URL"))
	openai := ai.NewOpenAI(os.Getenv("OPENAI_BASE_URL"))
	svc := notes.NewService(st, pr, gemini, openai)

	cacheDir := filepath.Join(*dataDir, "audio")
	recorder := audio.NewRecorder(cacheDir, *audioFormat, *audioInput)
	player := audio.NewPlayer(audio.NewFFPlayBackend())
	plays := stats.New(st)
	defer plays.Shutdown()

	stop := make(chan struct{})
	defer close(stop)
	go audio.SweepLoop(cacheDir, stop)

	c := cache.New()
	go func() {
		// Any mutation drops stale point reads.
		sub := st.Subscribe(context.Background())
		for range sub {
			c.Clear()
		}
	}()

	h := handlers.New(st, c, a, svc, pr, recorder, player, plays)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/notes", a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListNotes(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}, true))

	mux.HandleFunc("/api/notes/events", a.Middleware(h.NoteEvents, true))

	mux.HandleFunc("/api/notes/", a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && hasSuffix(r, "/audio"):
			h.NoteAudio(w, r)
		case r.Method == http.MethodPost && hasSuffix(r, "/retry"):
			h.RetryNote(w, r)
		case r.Method == http.MethodPost && hasSuffix(r, "/play"):
			h.Play(w, r)
		case r.Method == http.MethodGet:
			h.GetNote(w, r)
		case r.Method == http.MethodPatch:
			h.UpdateNote(w, r)
		case r.Method == http.MethodDelete:
			h.DeleteNote(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}, true))

	mux.HandleFunc("/api/record/start", a.Middleware(postOnly(h.StartRecording), true))
	mux.HandleFunc("/api/record/stop", a.Middleware(postOnly(h.StopRecording), true))

	mux.HandleFunc("/api/player", a.Middleware(h.PlayerState, true))
	mux.HandleFunc("/api/player/pause", a.Middleware(postOnly(h.Pause), true))
	mux.HandleFunc("/api/player/resume", a.Middleware(postOnly(h.Resume), true))
	mux.HandleFunc("/api/player/seek", a.Middleware(postOnly(h.Seek), true))
	mux.HandleFunc("/api/player/stop", a.Middleware(postOnly(h.StopPlayback), true))

	mux.HandleFunc("/api/settings", a.Middleware(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.GetSettings(w, r)
		case http.MethodPut:
			h.UpdateSettings(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}, true))

	mux.HandleFunc("/api/auth/check", a.Middleware(h.CheckAuth, false))
	mux.HandleFunc("/api/auth/logout", h.Logout)
	mux.HandleFunc("/auth/login", h.Login)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Starting voicenotes server on %s", addr)
	log.Printf("Run with --generate-link to create an owner login link")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func hasSuffix(r *http.Request, suffix string) bool {
	return len(r.URL.Path) > len(suffix) && r.URL.Path[len(r.URL.Path)-len(suffix):] == suffix
}

func postOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func generateSecret(name string) string {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		log.Fatalf("Failed to generate %s: %v", name, err)
	}
	secret := hex.EncodeToString(secretBytes)
	log.Printf("Generated %s (set the env var to persist): %s", name, secret)
	return secret
}
