package fsm

// hardLinkSet tracks one (dev, ino) group of regular files the package
// declares as hard-linked together: saveMember adds the current file
// index to filex, postponing until every member is accounted for; the
// first non-skipped member materializes the data, the rest are linked to
// it.
type hardLinkSet struct {
	Ino          uint64
	NLink        int
	CreatorIndex int
	CreatorPath  string
	filex        []int
	linksLeft    int

	// pending holds full paths of members seen before the creator's data
	// was materialized; processHardLinkMember drains it once the set is
	// complete.
	pending []string
}

func newHardLinkSet(ino uint64, members []int) *hardLinkSet {
	return &hardLinkSet{
		Ino:          ino,
		NLink:        len(members),
		CreatorIndex: -1,
		linksLeft:    len(members),
	}
}

// saveMember records that index has been seen for this set. It returns
// true once every member has been seen (the set is complete and its
// pending links can be made).
func (h *hardLinkSet) saveMember(index int) (complete bool) {
	h.filex = append(h.filex, index)
	h.linksLeft--
	return h.linksLeft == 0
}

// missingMembers reports whether the set closed with fewer members than
// NLink declared (MISSING_HARDLINK).
func (h *hardLinkSet) missingMembers() bool {
	return len(h.filex) < h.NLink
}
