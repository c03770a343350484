package amd64

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"
)

// mnemonicFor returns a debug-only mnemonic name for raw's leading opcode
// byte, borrowing golang-asm's opcode vocabulary rather than inventing our
// own. It is never consulted for correctness, only for String().
func mnemonicFor(raw []byte) obj.As {
	if len(raw) == 0 {
		return obj.ANOP
	}
	switch raw[0] {
	case opJMPRel8, opJMPRel32:
		return obj.AJMP
	case opCALLRel32:
		return obj.ACALL
	case opRET:
		return obj.ARET
	case opNOP:
		return obj.ANOP
	case op0FEscape:
		if len(raw) > 1 && raw[1] >= 0x80 && raw[1] <= 0x8F {
			return x86.AJNE
		}
		return obj.ANOP
	default:
		if raw[0] >= 0x70 && raw[0] <= 0x7F {
			return x86.AJNE
		}
		return obj.ANOP
	}
}
