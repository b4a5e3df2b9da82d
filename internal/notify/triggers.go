package notify

import (
	"regexp"
	"sort"
	"strings"

	"telegram-bridge/internal/models"
)

var (
	claimRe    = regexp.MustCompile(`https?://pay\.ubq\.fi/?[^\s)\]"'<>]*[?&]claim=[^\s)\]"'<>]+`)
	amountRe   = regexp.MustCompile(`\[\s*\**\s*[\d.,]+\s+[A-Za-z][A-Za-z0-9]*\s*\**\s*\]`)
	mentionRe  = regexp.MustCompile(`(?:^|[^\w/])@([A-Za-z\d](?:[A-Za-z\d]|-[A-Za-z\d]){0,38})\b`)
	reminderRe = regexp.MustCompile(`(?i)@([A-Za-z\d](?:[A-Za-z\d]|-[A-Za-z\d]){0,38}),?\s+this task has been idle for a while`)
	rfcRe      = regexp.MustCompile(`(?i)\brfc\s+@([A-Za-z\d](?:[A-Za-z\d]|-[A-Za-z\d]){0,38})\b`)
	priorityRe = regexp.MustCompile(`(?i)^priority:\s*(\d)`)
)

// Target is a GitHub user a comment addresses. ClaimURL is only set for
// payment comments, and only when a claim link precedes the mention.
type Target struct {
	Username string
	ClaimURL string
}

// Classify decides which comment trigger body fires, if any, and who it
// addresses. RFC mentions are not classified here; see RFCMentions.
func Classify(body string) (models.Trigger, []Target) {
	if claimRe.MatchString(body) && amountRe.MatchString(body) && mentionRe.MatchString(body) {
		return models.TriggerPayment, paymentTargets(body)
	}

	if m := reminderRe.FindAllStringSubmatch(body, -1); len(m) > 0 {
		targets := make([]Target, 0, len(m))
		for _, name := range uniqueNames(m) {
			targets = append(targets, Target{Username: name})
		}
		return models.TriggerReminder, targets
	}

	return "", nil
}

// RFCMentions returns the users asked for comment in body.
func RFCMentions(body string) []string {
	return uniqueNames(rfcRe.FindAllStringSubmatch(body, -1))
}

// paymentTargets walks claim links and mentions in document order and pairs
// each mention with the closest unconsumed claim before it.
func paymentTargets(body string) []Target {
	type token struct {
		pos   int
		claim string
		user  string
	}

	var tokens []token
	claims := claimRe.FindAllStringIndex(body, -1)
	for _, loc := range claims {
		tokens = append(tokens, token{pos: loc[0], claim: body[loc[0]:loc[1]]})
	}
	for _, loc := range mentionRe.FindAllStringSubmatchIndex(body, -1) {
		pos := loc[2]
		// mentions inside a claim link belong to the link
		if insideAny(pos, claims) {
			continue
		}
		tokens = append(tokens, token{pos: pos, user: body[loc[2]:loc[3]]})
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].pos < tokens[j].pos })

	var (
		pending string
		targets []Target
		seen    = map[string]int{}
	)
	for _, t := range tokens {
		if t.claim != "" {
			pending = t.claim
			continue
		}
		key := strings.ToLower(t.user)
		if i, ok := seen[key]; ok {
			if targets[i].ClaimURL == "" && pending != "" {
				targets[i].ClaimURL = pending
				pending = ""
			}
			continue
		}
		seen[key] = len(targets)
		targets = append(targets, Target{Username: t.user, ClaimURL: pending})
		pending = ""
	}
	return targets
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func uniqueNames(matches [][]string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range matches {
		key := strings.ToLower(m[1])
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m[1])
	}
	return out
}
