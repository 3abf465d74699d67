/*
Package config resolves the engine's process-global environment: root
directory, record-store path, and the TransFlag/VSFlag/DepFlag/
FilterFlag bitmasks, expressed in a YAML file as readable
flag names instead of raw integers.

*/
package config
