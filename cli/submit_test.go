package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func resetSubmitFlags() {
	submitTitle = ""
	submitMedium = ""
	submitCountry = ""
	submitDate = ""
}

func TestReadPayload(t *testing.T) {
	t.Run("JSON payload file", func(t *testing.T) {
		resetSubmitFlags()
		path := writeTempFile(t, "article.json", `{
			"title": "Renuncia el ministro",
			"medium": "El Nacional",
			"publication_date": "2024-05-15T00:00:00Z",
			"content": "El ministro presentó su renuncia."
		}`)

		payload, err := readPayload(path)
		require.NoError(t, err)
		assert.Equal(t, "Renuncia el ministro", payload.Title)
		assert.Equal(t, "El Nacional", payload.Medium)
		assert.Equal(t, "El ministro presentó su renuncia.", payload.Content)
		assert.True(t, payload.ReferenceDate.Equal(payload.PublicationDate), "Expected reference date fallback")
	})

	t.Run("Plain text file with flags", func(t *testing.T) {
		resetSubmitFlags()
		submitTitle = "Renuncia el ministro"
		submitMedium = "El Universal"
		submitDate = "2024-05-15"
		path := writeTempFile(t, "article.txt", "El ministro presentó su renuncia.")

		payload, err := readPayload(path)
		require.NoError(t, err)
		assert.Equal(t, "Renuncia el ministro", payload.Title)
		assert.Equal(t, "El Universal", payload.Medium)
		assert.True(t, payload.PublicationDate.Equal(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("Flags override JSON fields", func(t *testing.T) {
		resetSubmitFlags()
		submitTitle = "Titular corregido"
		path := writeTempFile(t, "article.json", `{
			"title": "Titular original",
			"publication_date": "2024-05-15T00:00:00Z",
			"content": "Contenido."
		}`)

		payload, err := readPayload(path)
		require.NoError(t, err)
		assert.Equal(t, "Titular corregido", payload.Title)
	})

	t.Run("Plain text without title rejected", func(t *testing.T) {
		resetSubmitFlags()
		path := writeTempFile(t, "article.txt", "El ministro presentó su renuncia.")

		_, err := readPayload(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "title and content are required")
	})

	t.Run("Invalid date rejected", func(t *testing.T) {
		resetSubmitFlags()
		submitTitle = "Titular"
		submitDate = "15-05-2024"
		path := writeTempFile(t, "article.txt", "Contenido.")

		_, err := readPayload(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "publication date")
	})

	t.Run("Missing file rejected", func(t *testing.T) {
		resetSubmitFlags()
		_, err := readPayload(filepath.Join(t.TempDir(), "missing.json"))
		require.Error(t, err)
	})
}
