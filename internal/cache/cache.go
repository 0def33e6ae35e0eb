// Package cache define la abstracción mínima de cache in-process que usa el
// core: snapshots de configuración de tenant y orígenes de confianza.
package cache

import "time"

// Cache es un cache clave/valor con TTL por entrada.
type Cache interface {
	// Get retorna el valor y si existe.
	Get(key string) ([]byte, bool)

	// Set guarda un valor con TTL. Si ttl <= 0 usa el default del backend.
	Set(key string, value []byte, ttl time.Duration)

	// Delete elimina una key.
	Delete(key string)
}
