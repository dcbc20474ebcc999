// Package admission validates and repairs raw user text before it reaches
// routing. It is the only stage allowed to terminate a request at the door.
package admission

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"

	"github.com/vantage-fi/advisor/internal/metrics"
)

// Decision is the admission gate outcome.
type Decision string

const (
	DecisionPass     Decision = "pass"
	DecisionRepair   Decision = "repair"
	DecisionFailFast Decision = "fail_fast"
)

// FailFastMessage is the fixed response for input the gate cannot salvage.
const FailFastMessage = "Xin lỗi, tôi không đọc được nội dung bạn gửi. Bạn vui lòng nhập lại câu hỏi bằng văn bản thường nhé."

// Corruption score weights. The three components are each ratios in [0,1].
const (
	weightReplacement = 0.5
	weightSignature   = 0.3
	weightControl     = 0.2
)

// mojibakeSignatures are byte-sequence artifacts of UTF-8 read as a legacy
// single-byte encoding. Ordered list; order only matters for counting.
var mojibakeSignatures = []string{
	"Ã©", "Ã¨", "Ãª", "Ã¡", "Ã ", "Ã¢", "Ã£", "Ã¤", "Ã¶", "Ã¼", "Ã±", "Ã§",
	"â€™", "â€˜", "â€œ", "â€", "â€“", "â€”", "â€¦",
	"Â ", "Â°", "Â£", "Ã", "á»", "áº",
}

// Thresholds controls when the gate repairs and when it gives up.
type Thresholds struct {
	Repair   float64 // score at or above which repair is attempted
	FailFast float64 // score above which the request is rejected
	MinDelta float64 // minimum score improvement for a repair to be accepted
}

// Result carries the gate outcome alongside the (possibly repaired) text.
type Result struct {
	Text          string   `json:"text"`
	Decision      Decision `json:"decision"`
	MojibakeScore float64  `json:"mojibake_score"`
	RepairApplied bool     `json:"repair_applied"`
	Strategy      string   `json:"strategy,omitempty"`
	EncodingGuess string   `json:"encoding_guess,omitempty"`
	ReasonCodes   []string `json:"reason_codes,omitempty"`
	Fingerprint   string   `json:"fingerprint"`
}

type repairStrategy struct {
	name     string
	encoding string
	apply    func(string) (string, bool)
}

// repairStrategies is the fixed, ordered set of reverse-encoding repairs.
var repairStrategies = []repairStrategy{
	{name: "latin1-utf8", encoding: "ISO-8859-1", apply: reencode(charmap.ISO8859_1)},
	{name: "cp1252-utf8", encoding: "Windows-1252", apply: reencode(charmap.Windows1252)},
}

// Evaluate normalizes, scores, and when warranted repairs the input text.
func Evaluate(raw string, th Thresholds) Result {
	text := norm.NFC.String(raw)
	score := Score(text)

	res := Result{
		Text:          text,
		Decision:      DecisionPass,
		MojibakeScore: score,
		Fingerprint:   fingerprint(text),
	}

	if score >= th.Repair {
		if repaired, strat, repairedScore, ok := bestRepair(text, score, th.MinDelta); ok {
			res.Text = repaired
			res.Decision = DecisionRepair
			res.RepairApplied = true
			res.Strategy = strat.name
			res.EncodingGuess = strat.encoding
			res.MojibakeScore = repairedScore
			res.ReasonCodes = append(res.ReasonCodes, "admission:repaired:"+strat.name)
			res.Fingerprint = fingerprint(repaired)
			score = repairedScore
			metrics.AdmissionRepairs.WithLabelValues(strat.name).Inc()
		} else {
			res.ReasonCodes = append(res.ReasonCodes, "admission:repair_failed")
		}
	}

	if score > th.FailFast {
		res.Decision = DecisionFailFast
		res.ReasonCodes = append(res.ReasonCodes, "admission:fail_fast")
	}
	metrics.AdmissionDecisions.WithLabelValues(string(res.Decision)).Inc()
	return res
}

// Score computes the corruption likelihood of text as a weighted sum of the
// replacement-character ratio, known mojibake signature density, and the
// disallowed-control-character ratio. Deterministic and pure.
func Score(text string) float64 {
	runeCount := utf8.RuneCountInString(text)
	if runeCount == 0 {
		return 0
	}

	replacements := 0
	controls := 0
	for _, r := range text {
		if r == utf8.RuneError {
			replacements++
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			controls++
		}
	}

	signatureRunes := 0
	for _, sig := range mojibakeSignatures {
		if n := strings.Count(text, sig); n > 0 {
			signatureRunes += n * utf8.RuneCountInString(sig)
		}
	}

	repRatio := ratio(replacements, runeCount)
	sigRatio := ratio(signatureRunes, runeCount)
	ctlRatio := ratio(controls, runeCount)

	return weightReplacement*repRatio + weightSignature*sigRatio + weightControl*ctlRatio
}

// bestRepair tries every strategy and keeps the candidate with the lowest
// (score, strategy-name) pair, accepted only when it improves the original
// score by at least minDelta.
func bestRepair(text string, originalScore, minDelta float64) (string, repairStrategy, float64, bool) {
	type candidate struct {
		strat repairStrategy
		text  string
		score float64
	}
	var candidates []candidate
	for _, strat := range repairStrategies {
		repaired, ok := strat.apply(text)
		if !ok || repaired == text {
			continue
		}
		candidates = append(candidates, candidate{strat: strat, text: repaired, score: Score(repaired)})
	}
	if len(candidates) == 0 {
		return "", repairStrategy{}, 0, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].strat.name < candidates[j].strat.name
	})
	best := candidates[0]
	if originalScore-best.score < minDelta {
		return "", repairStrategy{}, 0, false
	}
	return best.text, best.strat, best.score, true
}

// reencode builds a repair that maps each rune back to its single byte in the
// given charmap and reinterprets the byte string as UTF-8. Returns false when
// the text contains runes outside the charmap or the bytes are not valid UTF-8.
func reencode(cm *charmap.Charmap) func(string) (string, bool) {
	return func(text string) (string, bool) {
		buf := make([]byte, 0, len(text))
		for _, r := range text {
			b, ok := cm.EncodeRune(r)
			if !ok {
				return "", false
			}
			buf = append(buf, b)
		}
		if !utf8.Valid(buf) {
			return "", false
		}
		return norm.NFC.String(string(buf)), true
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	r := float64(n) / float64(d)
	if r > 1 {
		return 1
	}
	return r
}

func fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:8])
}
