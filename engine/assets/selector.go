package assets

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spaghettifunk/portrait/engine/core"
	"github.com/spaghettifunk/portrait/engine/resources"
)

// DefaultMinDimension is the size both sides of a candidate must exceed.
// Smaller textures with the same names are thumbnails and avatars.
const DefaultMinDimension = 512

const alphaMarker = "[alpha]"

/** @brief The configuration for the asset selector. */
type SelectorConfig struct {
	/** @brief Width and height must both be strictly greater than this. 0 uses DefaultMinDimension. */
	MinDimension uint32
	/** @brief Fail instead of keeping the last candidate when a slot is filled twice. */
	Strict bool
}

// Selector picks the color and alpha textures of one character
// illustration out of a container's objects.
type Selector struct {
	config SelectorConfig
}

func NewSelector(config SelectorConfig) *Selector {
	if config.MinDimension == 0 {
		config.MinDimension = DefaultMinDimension
	}
	return &Selector{config: config}
}

type ruleKey struct {
	hasHash bool
	isSkin  bool
}

// nameMatch holds the parts a rule's pattern captured from a texture name.
type nameMatch struct {
	codename string
	variant  string
}

type matchRule struct {
	name string
	// pattern is a format string taking the quoted codename.
	pattern string
}

// Names are "char_<number>_<codename>" with an optional "#<n>" skin suffix,
// an optional "b" variant that is never wanted and an optional "[alpha]".
var (
	defaultRule = matchRule{
		name:    "default",
		pattern: `(?i)char_\d*_(?P<code>%s\+?)(?P<variant>b?)(?P<alpha>\[alpha\])?$`,
	}
	numberedSkinRule = matchRule{
		name:    "numbered skin",
		pattern: `(?i)char_\d*_(?P<code>%s)(?P<variant>b?)(?P<alpha>\[alpha\])?$`,
	}
	skinRule = matchRule{
		name:    "skin",
		pattern: `(?i)char_\d*_(?P<code>%s)#(?P<skin>\d*)(?P<variant>b?)(?P<alpha>\[alpha\])?$`,
	}

	matchRules = map[ruleKey]matchRule{
		{hasHash: false, isSkin: false}: defaultRule,
		{hasHash: true, isSkin: false}:  defaultRule,
		{hasHash: true, isSkin: true}:   numberedSkinRule,
		{hasHash: false, isSkin: true}:  skinRule,
	}
)

func ruleFor(q resources.MatchQuery) matchRule {
	return matchRules[ruleKey{hasHash: strings.Contains(q.Codename, "#"), isSkin: q.IsSkin}]
}

func (mr matchRule) compile(codename string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(mr.pattern, regexp.QuoteMeta(codename)))
}

func parseName(re *regexp.Regexp, name string) (nameMatch, bool) {
	sub := re.FindStringSubmatch(name)
	if sub == nil {
		return nameMatch{}, false
	}
	return nameMatch{
		codename: sub[re.SubexpIndex("code")],
		variant:  sub[re.SubexpIndex("variant")],
	}, true
}

// accept decides on the captured parts alone: no "b" variant, and the
// codename must be exactly the requested one.
func (mr matchRule) accept(q resources.MatchQuery, m nameMatch) bool {
	return m.variant == "" && m.codename == q.Codename
}

func (s *Selector) eligible(obj *resources.TextureAsset) bool {
	return obj != nil &&
		obj.ClassID == resources.ClassIDTexture2D &&
		obj.Width > s.config.MinDimension &&
		obj.Height > s.config.MinDimension
}

// Select resolves the color/alpha pair for q. When several objects qualify
// for a slot the last one wins, unless the selector is strict.
func (s *Selector) Select(objects []*resources.TextureAsset, q resources.MatchQuery) (resources.MatchResult, error) {
	var result resources.MatchResult
	if q.Codename == "" {
		return result, fmt.Errorf("%w: empty codename", core.ErrResourceNotFound)
	}

	rule := ruleFor(q)
	re := rule.compile(q.Codename)
	for _, obj := range objects {
		if !s.eligible(obj) {
			continue
		}
		m, ok := parseName(re, obj.Name)
		if !ok || !rule.accept(q, m) {
			continue
		}

		slot, slotName := &result.Color, "color"
		if strings.Contains(obj.Name, alphaMarker) {
			slot, slotName = &result.Alpha, "alpha"
		}
		if prev := *slot; prev != nil {
			if s.config.Strict {
				return resources.MatchResult{}, fmt.Errorf("%w: %q and %q both match the %s slot of %s",
					core.ErrAmbiguousResource, prev.Name, obj.Name, slotName, q.Codename)
			}
			core.LogWarn("%s slot of %s: %q replaces %q", slotName, q.Codename, obj.Name, prev.Name)
		}
		core.LogDebug("%s rule matched %q (%dx%d) as %s", rule.name, obj.Name, obj.Width, obj.Height, slotName)
		*slot = obj
	}

	if !result.Complete() {
		var missing []string
		if result.Color == nil {
			missing = append(missing, "color")
		}
		if result.Alpha == nil {
			missing = append(missing, "alpha")
		}
		return resources.MatchResult{}, fmt.Errorf("%w: no resources related to %s in bundle (missing %s)",
			core.ErrResourceNotFound, q.Codename, strings.Join(missing, " and "))
	}
	return result, nil
}
