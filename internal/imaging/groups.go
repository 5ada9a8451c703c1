package imaging

// unionFind is a disjoint-set forest over record indexes.
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = rb
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = ra
	default:
		uf.parent[rb] = ra
		uf.rank[ra]++
	}
}

// GroupDuplicates links records whose fingerprints are within maxDistance
// and closes the links transitively. records must already be in position
// order (row, then column); the first member of each group is elected
// representative. Records with an Error or no fingerprint never join a
// group. The records are annotated in place.
func GroupDuplicates(records []Record, maxDistance int) []DuplicateGroup {
	uf := newUnionFind(len(records))
	for i := range records {
		if !groupable(records[i]) {
			continue
		}
		for j := i + 1; j < len(records); j++ {
			if !groupable(records[j]) {
				continue
			}
			d, err := Distance(records[i].Fingerprint, records[j].Fingerprint)
			if err == nil && d <= maxDistance {
				uf.union(i, j)
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range records {
		if !groupable(records[i]) {
			continue
		}
		root := uf.find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], i)
	}

	var groups []DuplicateGroup
	for _, root := range roots {
		idx := members[root]
		if len(idx) < 2 {
			continue
		}
		rep := &records[idx[0]]
		g := DuplicateGroup{Representative: rep.ID}
		for n, i := range idx {
			g.Members = append(g.Members, records[i].ID)
			records[i].IsDuplicate = true
			if n > 0 {
				records[i].DuplicateOf = rep.ID
				rep.Duplicates = append(rep.Duplicates, records[i].ID)
			}
		}
		groups = append(groups, g)
	}
	return groups
}

func groupable(r Record) bool {
	return r.Error == "" && len(r.Fingerprint) == 8
}
