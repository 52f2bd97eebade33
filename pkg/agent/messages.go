package agent

import (
	"context"
	"errors"

	"github.com/teslashibe/go-jarvis/pkg/inference"
)

// Localized user-facing strings.
type phrase struct{ en, id string }

func (p phrase) in(indonesian bool) string {
	if indonesian {
		return p.id
	}
	return p.en
}

var (
	msgNoKeys = phrase{
		en: "Neural Link Disconnected. Please configure API Key in Profile.",
		id: "Neural Link Terputus. Silakan konfigurasi Kunci API di Profil.",
	}
	msgSystemError = phrase{
		en: "System Error.",
		id: "Kesalahan Sistem.",
	}
	msgTimeout = phrase{
		en: "Apologies, your request timed out. Please try again.",
		id: "Maaf, permintaan Anda memakan waktu terlalu lama. Silakan coba lagi.",
	}
	msgNoData = phrase{
		en: "No data found.",
		id: "Tidak ada data ditemukan.",
	}
	msgImageEdited = phrase{
		en: "Image edited (Face & Consistency Preserved).",
		id: "Gambar telah diedit (Wajah & Konsistensi Terjaga).",
	}
	msgImageGenerated = phrase{
		en: "Image generated successfully.",
		id: "Gambar berhasil dibuat.",
	}
)

const (
	fallbackDoctor       = "Doctor agent error."
	fallbackPsychologist = "Psychologist agent error."
	fallbackSocialite    = "Socialite agent error."
	fallbackArchivist    = "No info in archives."
	fallbackLinguist     = "Translation unavailable."
	defaultTitle         = "New Topic"
)

// ErrorMessage turns a failure into the localized sentence shown to the
// user. Raw error text is never user-facing.
func ErrorMessage(err error, indonesian bool) string {
	switch {
	case errors.Is(err, inference.ErrNoKeys), errors.Is(err, inference.ErrNoAPIKey):
		return msgNoKeys.in(indonesian)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, inference.ErrAttemptTimeout):
		return msgTimeout.in(indonesian)
	default:
		return msgSystemError.in(indonesian)
	}
}
