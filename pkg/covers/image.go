package covers

import (
	"bytes"
	"image"
	"math"
	"path"
	"strings"

	"github.com/buckket/go-blurhash"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rotisserie/eris"
)

// ErrInvalidHash is returned by ValidateHash.
var ErrInvalidHash = eris.New("covers: invalid blurhash")

const webpQuality = 85

// WebPName replaces the extension of a wiki file name with ".webp".
func WebPName(file string) string {
	return strings.TrimSuffix(file, path.Ext(file)) + ".webp"
}

// resize scales img to width, keeping the aspect ratio. Images already
// narrower than width are returned as is.
func resize(img image.Image, width int) image.Image {
	if img.Bounds().Dx() <= width {
		return img
	}
	return imaging.Resize(img, width, 0, imaging.Lanczos)
}

func encodeWebP(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: webpQuality}); err != nil {
		return nil, eris.Wrap(err, "covers: encode webp")
	}
	return buf.Bytes(), nil
}

func decodeWebP(data []byte) (image.Image, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrap(err, "covers: decode webp")
	}
	return img, nil
}

// hashComponents picks blurhash components from the aspect ratio, each
// between 3 and 9.
func hashComponents(width, height int) (int, int) {
	ar := float64(width) / float64(height)
	clamp := func(v float64) int {
		return int(math.Floor(math.Min(9, math.Max(3, v))))
	}
	return clamp(3 * ar), clamp(3 / ar)
}

// BlurHash computes the placeholder hash of a thumbnail.
func BlurHash(thumb image.Image) (string, error) {
	x, y := hashComponents(thumb.Bounds().Dx(), thumb.Bounds().Dy())
	hash, err := blurhash.Encode(x, y, thumb)
	if err != nil {
		return "", eris.Wrap(err, "covers: compute blurhash")
	}
	return hash, nil
}

// ValidateHash checks that hash is well formed.
func ValidateHash(hash string) error {
	if len(hash) < 6 {
		return eris.Wrapf(ErrInvalidHash, "%q is too short", hash)
	}
	x, y, err := blurhash.Components(hash)
	if err != nil {
		return eris.Wrapf(ErrInvalidHash, "%q: %v", hash, err)
	}
	if want := 4 + 2*x*y; len(hash) != want {
		return eris.Wrapf(ErrInvalidHash, "%q: length %d, expected %d", hash, len(hash), want)
	}
	return nil
}
