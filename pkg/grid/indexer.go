package grid

// indexer interface is design to give a unique index to a combination of a cell's attributes and vice versa
type indexer interface {
	// Returns a unique index to a combination of cell attributes (all zero-based)
	Index(class, day, hour int) int
	// Returns a combination of cell attributes from a unique index
	Attributes(index int) (class int, day int, hour int)
	// Total number of cells
	Size() int
}

func newIndexer(classes, days, hours int) indexer {
	return &indexerImplementation{
		classes: classes,
		days:    days,
		hours:   hours,
	}
}

type indexerImplementation struct {
	classes int
	days    int
	hours   int
}

func (indexer *indexerImplementation) Index(class, day, hour int) int {
	return hour + indexer.hours*day + indexer.hours*indexer.days*class
}

func (indexer *indexerImplementation) Attributes(index int) (class, day, hour int) {
	hour = index % indexer.hours
	index = index / indexer.hours

	day = index % indexer.days
	index = index / indexer.days

	class = index
	return class, day, hour
}

func (indexer *indexerImplementation) Size() int {
	return indexer.classes * indexer.days * indexer.hours
}
