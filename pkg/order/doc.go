/*
Package order implements the Orderer: a topological sort
of transaction elements by Kahn's algorithm, edges drawn install(A) ->
install(B) when A requires a capability B provides, and reversed for
REMOVED elements since erase order is the reverse of install order.
Upgrade pairs are spliced so the new install immediately precedes the
old erase.

When the ready set empties with nodes still unplaced, a cycle exists;
the orderer drops the lexicographically-greatest (requirer, capability)
edge among the remaining cycle edges and continues, counting every node
it could not place via a broken edge as "unordered" rather than
failing.

*/
package order
