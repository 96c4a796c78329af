package model

import "math"

type DomainGenerator interface {
	// Attributes' order in the permutation parameter is the following: Day, Hour.
	// Values are 1-based. All the constraints must take into account that if the value of permutation[i] is math.MaxInt
	// then the permutation is not ready to be evaluated if this evaluation involves permutation[i]
	//
	// Example:
	//
	//	generator := model.NewDomainGenerator(Days, Hours)
	//
	//	domain := generator.ConstrainedPermutations([]func(permutation []int) bool{
	//				func(permutation []int) bool {
	//					// Verify "permutation[0] == math.MaxInt", since the predicate "permutation[0] != 3" relies in this index
	//					return permutation[0] == math.MaxInt || permutation[0] != 3
	//				},
	//			})
	ConstrainedPermutations(constraints []func(permutation []int) bool) []TimeSlot
}

func NewDomainGenerator(days, hours int) DomainGenerator {
	return &domainGeneratorImplementation{days: days, hours: hours}
}

type domainGeneratorImplementation struct {
	days, hours int
}

func (generator *domainGeneratorImplementation) ConstrainedPermutations(constraints []func(permutation []int) bool) []TimeSlot {
	permutations := make([]TimeSlot, 0, generator.days*generator.hours)
	generator.constrainedPermutations(
		constraints,
		[]int{generator.days, generator.hours},
		0,
		[]int{math.MaxInt, math.MaxInt},
		&permutations,
	)
	return permutations
}

func (generator *domainGeneratorImplementation) constrainedPermutations(
	constraints []func(permutation []int) bool,
	domains []int,
	currentDomain int,
	permutation []int,
	permutations *[]TimeSlot) {

	if currentDomain >= len(domains) {
		*permutations = append(*permutations, TimeSlot{Day: permutation[0], Hour: permutation[1]})
		return
	}

	for i := 1; i <= domains[currentDomain]; i++ {
		permutation[currentDomain] = i
		constraintViolated := false
		for _, constraint := range constraints {
			if !constraint(permutation) {
				constraintViolated = true
				break
			}
		}

		if constraintViolated {
			continue
		}

		generator.constrainedPermutations(constraints, domains, currentDomain+1, permutation, permutations)
	}

	permutation[currentDomain] = math.MaxInt
}
