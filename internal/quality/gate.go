// Package quality implements the deterministic gate every candidate post
// must pass before it is stocked or published.
package quality

import "regexp"

// Score is the structured gate result. Computed once per candidate text;
// never mutated. Identical text always yields an identical Score.
type Score struct {
	Empathy int `json:"empathy"` // 0-3
	Benefit int `json:"benefit"` // 0-2
	CTA     int `json:"cta"`     // 0-2
	Urgency int `json:"urgency"` // 0-1
	Trust   int `json:"trust"`   // 0-2

	Total  int  `json:"total"`
	Passed bool `json:"passed"`

	Issues      []string `json:"issues,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Gate scores candidate text against fixed heuristic patterns and a
// configurable pass threshold.
type Gate struct {
	passThreshold int
}

// NewGate returns a gate that passes candidates scoring at least threshold.
func NewGate(threshold int) *Gate {
	return &Gate{passThreshold: threshold}
}

var empathyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ぶっちゃけ|正直|本当は|実は`),
	regexp.MustCompile(`わかる|あるある|そうだよね`),
	regexp.MustCompile(`悩んで|困って|辛い|しんどい|疲れ`),
	regexp.MustCompile(`思ってない？|感じてない？`),
}

var benefitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`時給\d|月\d+万|週\d日|1日\d時間`),
	regexp.MustCompile(`通勤ゼロ|在宅|顔出しなし|匿名`),
	regexp.MustCompile(`日払い|即日|翌日`),
	regexp.MustCompile(`自由|好きな時間`),
}

var ctaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)DM|メッセージ`),
	regexp.MustCompile(`気軽に|相談だけ|質問だけ|話だけ`),
	regexp.MustCompile(`興味あ|知りたい|詳しく`),
	regexp.MustCompile(`プロフ|リンク`),
}

var urgencyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`今なら|今月|期間限定`),
	regexp.MustCompile(`残り|あと\d`),
	regexp.MustCompile(`急募|募集中`),
}

var trustPatterns = []*regexp.Regexp{
	regexp.MustCompile(`所属の子|うちの子|在籍`),
	regexp.MustCompile(`実際に|本当に|リアルに`),
	regexp.MustCompile(`\d+人|実績|達成`),
	regexp.MustCompile(`サポート|教える|一緒に`),
}

// ngPatterns reject a candidate outright, regardless of sub-scores.
var ngPatterns = []struct {
	re     *regexp.Regexp
	reason string
}{
	{regexp.MustCompile(`絶対|100%|確実|必ず`), "exaggerated claim"},
	{regexp.MustCompile(`稼げる！！|儲かる！！`), "excessive hype"},
	{regexp.MustCompile(`エロ|セクシー|裸|脱`), "explicit wording"},
	{regexp.MustCompile(`LINE@|LINE追加`), "off-platform funnel"},
	{regexp.MustCompile(`http|https|\.com|\.jp`), "contains link"},
}

func countMatches(text string, patterns []*regexp.Regexp, limit int) int {
	n := 0
	for _, re := range patterns {
		if re.MatchString(text) {
			n++
			if n >= limit {
				return limit
			}
		}
	}
	return n
}

// Check scores the text. NG patterns zero the score outright; otherwise the
// five sub-scores are summed and compared against the pass threshold.
func (g *Gate) Check(text string) Score {
	for _, ng := range ngPatterns {
		if ng.re.MatchString(text) {
			return Score{
				Passed:      false,
				Issues:      []string{"rejected: " + ng.reason},
				Suggestions: []string{"remove the flagged wording and regenerate"},
			}
		}
	}

	var issues, suggestions []string

	runes := len([]rune(text))
	if runes < 100 {
		issues = append(issues, "text too short (under 100 chars)")
		suggestions = append(suggestions, "add concrete detail")
	} else if runes > 300 {
		issues = append(issues, "text too long (over 300 chars)")
		suggestions = append(suggestions, "tighten the copy")
	}

	s := Score{
		Empathy: countMatches(text, empathyPatterns, 3),
		Benefit: countMatches(text, benefitPatterns, 2),
		CTA:     countMatches(text, ctaPatterns, 2),
		Urgency: countMatches(text, urgencyPatterns, 1),
		Trust:   countMatches(text, trustPatterns, 2),
	}

	if s.Empathy == 0 {
		issues = append(issues, "weak empathy hook")
		suggestions = append(suggestions, "open with a candid phrase")
	}
	if s.Benefit == 0 {
		issues = append(issues, "benefit unclear")
		suggestions = append(suggestions, "add concrete numbers (pay, hours)")
	}
	if s.CTA == 0 {
		issues = append(issues, "no call to action")
		suggestions = append(suggestions, "add a soft DM invitation")
	}
	if s.Trust == 0 {
		issues = append(issues, "low credibility")
		suggestions = append(suggestions, "reference real members or track record")
	}

	s.Total = s.Empathy + s.Benefit + s.CTA + s.Urgency + s.Trust
	s.Passed = s.Total >= g.passThreshold
	s.Issues = issues
	s.Suggestions = suggestions
	return s
}
