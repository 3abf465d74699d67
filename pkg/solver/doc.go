/*
Package solver implements the Dependency Solver: for
every ADDED candidate's requires, a satisfier must exist somewhere in
(installed ∪ added) \ (removed ∪ erased); no member of that same
universe may satisfy a conflicts dependency; and an obsoletes dependency
marks the matching installed package for implicit removal, paired with
the obsoleting install by pkg/transaction for the Orderer.

Version matching goes through pkg/types.EVRSatisfies / rpmvercmp.
*/
package solver
