package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/rechain/quorumchain/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHandshakeFrame(&buf, []byte("hello")))
	got, err := ReadHandshakeFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	buf.Reset()
	require.NoError(t, WriteDataFrame(&buf, []byte("ciphertext-ish")))
	got2, err := ReadDataFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext-ish"), got2)
}

func TestHandshakeAndFramedSession(t *testing.T) {
	clientStatic, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)
	serverStatic, err := crypto.GenerateX25519KeyPair()
	require.NoError(t, err)

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	type result struct {
		sess         *Session
		remoteStatic [32]byte
		err          error
	}
	serverResult := make(chan result, 1)
	go func() {
		sess, remote, err := AcceptHandshake(serverConn, serverStatic)
		serverResult <- result{sess, remote, err}
	}()

	clientSess, err := DialHandshake(clientConn, clientStatic, serverStatic.Public)
	require.NoError(t, err)

	srv := <-serverResult
	require.NoError(t, srv.err)
	assert.Equal(t, clientStatic.Public, srv.remoteStatic)

	require.NoError(t, clientSess.WriteMessage(clientConn, []byte("ping")))
	got, err := srv.sess.ReadMessage(serverConn)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	require.NoError(t, srv.sess.WriteMessage(serverConn, []byte("pong")))
	got2, err := clientSess.ReadMessage(clientConn)
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got2)
}

func TestEnvelopeSignVerifyRoundTrip(t *testing.T) {
	kp, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	prop := Propose{Height: 1, Round: 1, ProposerV: 0, PrevHash: crypto.ZeroHash, TxHashes: []crypto.Hash{crypto.SumHash([]byte("a"))}}
	env := &Envelope{Tag: TagPropose, Body: prop.Encode()}
	env.Sign(kp)
	assert.True(t, env.Verify())

	decodedEnv, err := DecodeEnvelope(env.Encode())
	require.NoError(t, err)
	assert.True(t, decodedEnv.Verify())

	decoded, err := DecodeBody(decodedEnv)
	require.NoError(t, err)
	require.NotNil(t, decoded.Propose)
	assert.Equal(t, prop.Height, decoded.Propose.Height)
	assert.Equal(t, prop.TxHashes, decoded.Propose.TxHashes)
}

func TestMessageRoundTrips(t *testing.T) {
	h := crypto.SumHash([]byte("x"))

	prevote := Prevote{Height: 1, Round: 2, ValidatorV: 3, ProposeHash: h, LockedRound: NoLockedRound}
	decPrevote, err := DecodePrevote(prevote.Encode())
	require.NoError(t, err)
	assert.Equal(t, prevote, decPrevote)

	precommit := Precommit{Height: 1, Round: 2, ValidatorV: 3, ProposeHash: h, BlockHash: h, Timestamp: 42}
	decPrecommit, err := DecodePrecommit(precommit.Encode())
	require.NoError(t, err)
	assert.Equal(t, precommit, decPrecommit)

	txReq := TransactionsRequest{TxHashes: []crypto.Hash{h, crypto.ZeroHash}}
	decTxReq, err := DecodeTransactionsRequest(txReq.Encode())
	require.NoError(t, err)
	assert.Equal(t, txReq, decTxReq)

	prevotesReq := PrevotesRequest{Height: 1, Round: 1, ProposeHash: h, AlreadyHave: []byte{0x01, 0x02}}
	decPrevotesReq, err := DecodePrevotesRequest(prevotesReq.Encode())
	require.NoError(t, err)
	assert.Equal(t, prevotesReq, decPrevotesReq)

	blockResp := BlockResponse{Height: 5, BlockBytes: []byte("hdr"), TxBytes: [][]byte{[]byte("tx1"), []byte("tx2")}, PrecommitEnvelopes: [][]byte{(&Envelope{Tag: TagPrecommit, Body: precommit.Encode()}).Encode()}}
	decBlockResp, err := DecodeBlockResponse(blockResp.Encode())
	require.NoError(t, err)
	assert.Equal(t, blockResp, decBlockResp)
}

func TestDecodeBodyRejectsUnknownTag(t *testing.T) {
	env := &Envelope{Tag: Tag(200), Body: []byte("junk")}
	_, err := DecodeBody(env)
	assert.Error(t, err)
}
