package rpc

import (
	"context"

	"go.uber.org/zap"
)

// Method names.
const (
	MethodSayHello          = "say_hello"
	MethodDocuments         = "documents"
	MethodDocumentNew       = "document-new"
	MethodDocumentFunctions = "document-functions"
	MethodDocumentXRefs     = "document-xrefs"
	MethodFunctionName      = "function-name"
	MethodFunctionIR        = "function-ir"
	MethodInstructionAt     = "instruction-at"
	MethodCallsToSymbol     = "calls-to-symbol"
	MethodTranslations      = "document-translations"
)

// DocumentAdded is the result of a successful document-new call.
const DocumentAdded = "document added"

type handler func(ctx context.Context, p params) (any, error)

func (s *Server) methods() map[string]handler {
	return map[string]handler{
		MethodSayHello:          s.sayHello,
		MethodDocuments:         s.documents,
		MethodDocumentNew:       s.documentNew,
		MethodDocumentFunctions: s.documentFunctions,
		MethodDocumentXRefs:     s.documentXRefs,
		MethodFunctionName:      s.functionName,
		MethodFunctionIR:        s.functionIR,
		MethodInstructionAt:     s.instructionAt,
		MethodCallsToSymbol:     s.callsToSymbol,
		MethodTranslations:      s.translations,
	}
}

func (s *Server) sayHello(context.Context, params) (any, error) {
	return "hello", nil
}

func (s *Server) documents(context.Context, params) (any, error) {
	return s.svc.ListDocuments()
}

func (s *Server) documentNew(ctx context.Context, p params) (any, error) {
	name, err := p.string("name")
	if err != nil {
		return nil, err
	}
	data, err := p.bytes("bytes")
	if err != nil {
		return nil, err
	}
	sum, err := s.svc.CreateDocument(ctx, name, data)
	if err != nil {
		return nil, err
	}
	s.log.Info("document added",
		zap.String("document", name),
		zap.Int("bytes", len(data)),
		zap.Int("functions", sum.Functions),
		zap.Int("skipped", sum.Skipped),
		zap.Int("capped", sum.Capped),
	)
	return DocumentAdded, nil
}

func (s *Server) documentFunctions(_ context.Context, p params) (any, error) {
	name, err := p.string("document-name")
	if err != nil {
		return nil, err
	}
	return s.svc.ListFunctions(name)
}

func (s *Server) documentXRefs(_ context.Context, p params) (any, error) {
	name, err := p.string("document-name")
	if err != nil {
		return nil, err
	}
	return s.svc.XRefs(name)
}

func (s *Server) functionName(_ context.Context, p params) (any, error) {
	name, index, err := documentAndIndex(p)
	if err != nil {
		return nil, err
	}
	return s.svc.FunctionName(name, index)
}

func (s *Server) functionIR(_ context.Context, p params) (any, error) {
	name, index, err := documentAndIndex(p)
	if err != nil {
		return nil, err
	}
	return s.svc.FunctionIR(name, index)
}

func (s *Server) instructionAt(_ context.Context, p params) (any, error) {
	name, err := p.string("document-name")
	if err != nil {
		return nil, err
	}
	addr, err := p.uint64("address")
	if err != nil {
		return nil, err
	}
	return s.svc.ResolveAddress(name, addr)
}

func (s *Server) callsToSymbol(_ context.Context, p params) (any, error) {
	name, err := p.string("document-name")
	if err != nil {
		return nil, err
	}
	sym, err := p.string("symbol")
	if err != nil {
		return nil, err
	}
	return s.svc.FindCallsToSymbol(name, sym)
}

func (s *Server) translations(_ context.Context, p params) (any, error) {
	name, err := p.string("document-name")
	if err != nil {
		return nil, err
	}
	return s.svc.Translations(name)
}

func documentAndIndex(p params) (string, int, error) {
	name, err := p.string("document-name")
	if err != nil {
		return "", 0, err
	}
	index, err := p.int("function-index")
	if err != nil {
		return "", 0, err
	}
	return name, index, nil
}

