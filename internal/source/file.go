package source

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/curator-cli/internal/model"
)

// FileSource reads a JSON array of candidates from disk on every call.
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) ListCandidates(ctx context.Context, limit int) ([]model.ArtworkCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", s.path)
	}

	var raw []model.ArtworkCandidate
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, eris.Wrapf(err, "source: decode %s", s.path)
	}

	out := keepValid("file", raw)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	zap.L().Debug("source: loaded candidates",
		zap.String("path", s.path),
		zap.Int("count", len(out)),
	)
	return out, nil
}
