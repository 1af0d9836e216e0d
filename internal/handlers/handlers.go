package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Brownie44l1/rvm-classifier/internal/model"
)

const maxUploadBytes = 10 << 20

type Handler struct {
	classifier *model.Classifier
	// The classifier owns a single engine and must not run concurrently.
	mu sync.Mutex
}

func NewHandler(classifier *model.Classifier) *Handler {
	return &Handler{
		classifier: classifier,
	}
}

// Routes registers the handler's endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/health", EnableCORS(h.Health))
	mux.HandleFunc("/labels", EnableCORS(h.Labels))
	mux.HandleFunc("/predict", EnableCORS(h.Predict))
	mux.HandleFunc("/predict/image", EnableCORS(h.PredictFromImage))
}

func EnableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) Labels(w http.ResponseWriter, r *http.Request) {
	height, width, channels := h.classifier.InputSize()
	writeJSON(w, http.StatusOK, map[string]any{
		"labels":      h.classifier.Labels(),
		"input_shape": []int{height, width, channels},
	})
}

// Predict classifies a preprocessed input tensor sent as JSON.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.PredictionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	height, width, channels := h.classifier.InputSize()
	if expected := height * width * channels; len(req.Input) != expected {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", expected, len(req.Input)),
			http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	result, err := h.classifier.ClassifyTensor(model.Tensor{Values: req.Input})
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// PredictFromImage classifies a JPEG or PNG uploaded in the "image" form
// field.
func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}

	log := logrus.WithFields(logrus.Fields{
		"file":   header.Filename,
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	})

	h.mu.Lock()
	result, err := h.classifier.Classify(img)
	h.mu.Unlock()
	if err != nil {
		writeError(w, err)
		return
	}

	log.WithField("top_prediction", result.TopPrediction).Debug("classified upload")
	writeJSON(w, http.StatusOK, result)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logrus.WithError(err).Error("prediction failed")
	http.Error(w, "Prediction failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("failed to write response")
	}
}
