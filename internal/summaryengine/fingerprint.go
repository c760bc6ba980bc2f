package summaryengine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"summarybot-ng/internal/domain"
)

// Fingerprint computes the stable hash of (channel, start, end, sorted
// option keys/values) spec.md 3 defines: two requests with equal
// fingerprints must yield equal results modulo model nondeterminism.
func Fingerprint(req domain.SummaryRequest) domain.Fingerprint {
	parts := []string{
		req.ChannelID,
		strconv.FormatInt(req.Start.Unix(), 10),
		strconv.FormatInt(req.End.Unix(), 10),
	}

	opts := map[string]string{
		"lengthProfile":   string(req.Options.LengthProfile),
		"includeBots":     strconv.FormatBool(req.Options.IncludeBots),
		"excludedUsers":   strings.Join(sortedCopy(req.Options.ExcludedUsers), ","),
		"minMessages":     strconv.Itoa(req.Options.MinMessages),
		"model":           req.Options.Model,
		"temperature":     strconv.FormatFloat(req.Options.Temperature, 'f', -1, 64),
		"maxOutputTokens": strconv.Itoa(req.Options.MaxOutputTokens),
	}

	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+opts[k])
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return domain.Fingerprint(fmt.Sprintf("%s:%d:%d:%s", req.ChannelID, req.Start.Unix(), req.End.Unix(), hex.EncodeToString(sum[:8])))
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}
