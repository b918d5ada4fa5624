// Package domain reúne os tipos do limitador: janela, chave, decisão e as
// portas implementadas em infra. Nada aqui conhece HTTP nem Redis.
package domain
