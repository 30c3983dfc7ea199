package common

import (
	"fmt"
	"sort"
	"strings"
)

// SectionType names a group of sections that can be removed together.
type SectionType int

const (
	DebugSections SectionType = iota
	SymbolSections
	BuildInfoSections
	NonEssentialSections
)

// SectionMatcher describes the section names of one group.
type SectionMatcher struct {
	Name        string
	ExactNames  []string
	PrefixNames []string
	Description string
	IsRisky     bool // removing it may break the image at run time
}

// Matches reports whether a section name belongs to the group.
func (m SectionMatcher) Matches(name string) bool {
	return MatchesPattern(name, m.ExactNames, m.PrefixNames)
}

// GetSectionMatchers returns the preset groups. Image section names hold at
// most 8 bytes, so longer toolchain names appear truncated.
func GetSectionMatchers() map[SectionType]SectionMatcher {
	return map[SectionType]SectionMatcher{
		DebugSections: {
			Name:        "debug",
			ExactNames:  []string{".stab", ".stabstr"},
			PrefixNames: []string{".debug", ".zdebug"},
			Description: "debugging information",
		},
		SymbolSections: {
			Name:        "symbols",
			ExactNames:  []string{".symtab", ".strtab"},
			Description: "symbol table information",
		},
		BuildInfoSections: {
			Name:        "buildinfo",
			ExactNames:  []string{".buildid", ".gosymta", ".gopclnt"},
			PrefixNames: []string{".go.bui"},
			Description: "build information and toolchain metadata",
			IsRisky:     true,
		},
		NonEssentialSections: {
			Name:        "nonessential",
			ExactNames:  []string{".comment", ".drectve", ".gnu_deb"},
			PrefixNames: []string{".note"},
			Description: "non-essential metadata",
		},
	}
}

// ParseSectionType maps a preset name to its SectionType.
func ParseSectionType(name string) (SectionType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, m := range GetSectionMatchers() {
		if m.Name == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown preset %q (%s)", name, strings.Join(PresetNames(), ", "))
}

// PresetNames lists the preset names accepted by ParseSectionType.
func PresetNames() []string {
	var names []string
	for _, m := range GetSectionMatchers() {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// SelectSections returns, in input order and without duplicates, the names
// that belong to any of the given groups.
func SelectSections(names []string, types ...SectionType) []string {
	matchers := GetSectionMatchers()
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		if seen[name] {
			continue
		}
		for _, t := range types {
			if m, ok := matchers[t]; ok && m.Matches(name) {
				seen[name] = true
				out = append(out, name)
				break
			}
		}
	}
	return out
}
