package pipeline

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// artifactName returns a collision-resistant, time-qualified object name.
// Format: <prefix>-<unix-millis>-<random><ext>
// Example: reel-1701432000123-a1b2c3d4.mp4
func artifactName(prefix, ext string) string {
	millis := time.Now().UnixMilli()
	random := make([]byte, 4)
	if _, err := rand.Read(random); err != nil {
		// Fallback to timestamp only if crypto/rand fails
		return fmt.Sprintf("%s-%d%s", prefix, millis, ext)
	}
	return fmt.Sprintf("%s-%d-%s%s", prefix, millis, hex.EncodeToString(random), ext)
}
