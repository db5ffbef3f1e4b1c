package ereserve

import (
	"strconv"
	"strings"
)

// FilterChapters narrows the chapter list by a selection expression:
// a 1-based index ("3"), a range ("2-5"), a comma list ("1,3,7"), or a
// chapter name. An empty expression keeps everything; an expression that
// matches nothing returns an empty list.
func FilterChapters(all []Chapter, sel string) []Chapter {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return all
	}

	if strings.Contains(sel, ",") {
		return filterByList(all, sel)
	}
	if strings.Contains(sel, "-") {
		if out := filterByRange(all, sel); out != nil {
			return out
		}
	}
	if idx, err := atoi(sel); err == nil {
		if idx > 0 && idx <= len(all) {
			return []Chapter{all[idx-1]}
		}
		return []Chapter{}
	}

	return filterByName(all, sel)
}

func filterByName(all []Chapter, name string) []Chapter {
	var out []Chapter
	for _, ch := range all {
		if ch.Name == name || ch.DisplayName() == name {
			out = append(out, ch)
		}
	}
	return out
}

func filterByRange(all []Chapter, rng string) []Chapter {
	parts := strings.Split(rng, "-")
	if len(parts) != 2 {
		return nil
	}
	start, err1 := atoi(parts[0])
	end, err2 := atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil
	}
	if start <= 0 || end <= 0 || start > end || end > len(all) {
		return nil
	}
	return all[start-1 : end]
}

func filterByList(all []Chapter, list string) []Chapter {
	nums := strings.Split(list, ",")
	out := []Chapter{}
	for _, n := range nums {
		idx, err := atoi(n)
		if err != nil {
			continue
		}
		if idx > 0 && idx <= len(all) {
			out = append(out, all[idx-1])
		}
	}
	return out
}

func atoi(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}
